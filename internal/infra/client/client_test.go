package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/infra/client"
	"github.com/boddenberg/fintrack-go/internal/infra/observability"
	"github.com/boddenberg/fintrack-go/internal/infra/resilience"
	"github.com/boddenberg/fintrack-go/internal/infra/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// newClient returns a client against srv with "tok" stored as the auth token.
func newClient(t *testing.T, srv *httptest.Server, withToken bool) *client.Client {
	t.Helper()
	store := storage.NewMemoryStore()
	if withToken {
		_ = store.Set(context.Background(), domain.KeyAuthToken, "tok")
	}
	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 4}
	return client.New(
		srv.Client(),
		srv.URL,
		store,
		resilience.NewCircuitBreaker("test", client.IsTransient),
		cfg,
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func writeEnvelope(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestListTransactions_BareArrayAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/finance/transactions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("month"); got != "2024-03" {
			t.Errorf("expected month filter, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":[
			{"id":"t1","description":"Salário","amount":1000.50,"type":"income","category":"c1","date":"2024-03-05"}
		]}`)
	}))
	defer srv.Close()

	txs, err := newClient(t, srv, true).ListTransactions(context.Background(), "2024-03")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	if !txs[0].Amount.Equal(decimal.RequireFromString("1000.50")) {
		t.Errorf("expected amount 1000.50, got %s", txs[0].Amount)
	}
}

func TestListGoals_WrappedList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":{"goals":[
			{"id":"g1","title":"Viagem","target_amount":5000,"current_amount":1250,"deadline":"2024-12-31"}
		]}}`)
	}))
	defer srv.Close()

	goals, err := newClient(t, srv, true).ListGoals(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(goals) != 1 || goals[0].Title != "Viagem" {
		t.Fatalf("unexpected goals %+v", goals)
	}
	if !goals[0].Progress().Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("expected progress 0.25, got %s", goals[0].Progress())
	}
}

func TestNoToken_SendsNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, false).ListCategories(context.Background())

	var authErr *domain.ErrAuth
	if !errors.As(err, &authErr) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if authErr.Message != client.MsgNoToken {
		t.Errorf("expected %q, got %q", client.MsgNoToken, authErr.Message)
	}
	if hits.Load() != 0 {
		t.Errorf("expected no request, got %d", hits.Load())
	}
}

func TestUnauthorized_MapsToErrAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, `{"success":false,"message":"Token inválido"}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, true).Me(context.Background())

	var authErr *domain.ErrAuth
	if !errors.As(err, &authErr) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if domain.Message(err) != "Token inválido" {
		t.Errorf("expected backend message, got %q", domain.Message(err))
	}
}

func TestErrorWithoutMessage_FallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newClient(t, srv, true).DeleteGoal(context.Background(), "g1")

	var appErr *domain.ErrApp
	if !errors.As(err, &appErr) || appErr.Status != http.StatusNotFound {
		t.Fatalf("expected ErrApp 404, got %v", err)
	}
	if got := domain.Message(err); got != "HTTP error! status: 404" {
		t.Errorf("expected status fallback, got %q", got)
	}
}

func TestSuccessFalse_IsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"success":false,"message":"Dados inválidos","errors":{"name":["obrigatório"]}}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, true).CreateCategory(context.Background(), domain.CategoryInput{Name: "x"})

	var appErr *domain.ErrApp
	if !errors.As(err, &appErr) {
		t.Fatalf("expected ErrApp, got %v", err)
	}
	if appErr.Message != "Dados inválidos" || appErr.Code != "name" {
		t.Errorf("unexpected error %+v", appErr)
	}
}

func TestGET_RetriesOnServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			writeEnvelope(w, http.StatusBadGateway, `{"success":false}`)
			return
		}
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":{"people":[{"id":"p1","name":"Ana","relationship":"amigo","color":"#fff"}]}}`)
	}))
	defer srv.Close()

	people, err := newClient(t, srv, true).ListPeople(context.Background())
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(people) != 1 || hits.Load() != 3 {
		t.Errorf("expected 1 person after 3 attempts, got %d after %d", len(people), hits.Load())
	}
}

func TestGET_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		writeEnvelope(w, http.StatusBadRequest, `{"success":false,"message":"mês inválido"}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, true).ListDebts(context.Background(), "2024-13")
	if err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", hits.Load())
	}
}

func TestMutations_AreNeverRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		writeEnvelope(w, http.StatusServiceUnavailable, `{"success":false}`)
	}))
	defer srv.Close()

	in := domain.TransactionInput{Description: "Mercado", Amount: decimal.NewFromInt(10), Type: domain.TransactionExpense, Date: "2024-03-01"}
	if _, err := newClient(t, srv, true).CreateTransaction(context.Background(), in); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single POST, got %d", hits.Load())
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	c := newClient(t, srv, true)
	srv.Close()

	_, err := c.ListGoals(context.Background())

	var netErr *domain.ErrNetwork
	if !errors.As(err, &netErr) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if domain.Message(err) != domain.MsgNetworkError {
		t.Errorf("expected network message, got %q", domain.Message(err))
	}
}

func TestUpdateDebtPayment_SendsSnakeCaseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/debts/d1/payment" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["paid_amount"] != float64(200) {
			t.Errorf("expected numeric paid_amount 200, got %#v", body["paid_amount"])
		}
		if body["notes"] != "pix" {
			t.Errorf("expected notes, got %#v", body["notes"])
		}
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":{"debt":{"id":"d1","person_id":"p1","description":"Almoço","amount":600,"paid_amount":200,"status":"partial","date":"2024-03-02"}}}`)
	}))
	defer srv.Close()

	notes := "pix"
	debt, err := newClient(t, srv, true).UpdateDebtPayment(context.Background(), "d1", domain.DebtPayment{PaidAmount: decimal.NewFromInt(200), Notes: &notes})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if debt.Status != domain.DebtPartial || !debt.Pending().Equal(decimal.NewFromInt(400)) {
		t.Errorf("unexpected debt %+v", debt)
	}
}

func TestCreateDebt_BareEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":{"id":"d9","person_id":"p1","description":"Cinema","amount":50,"paid_amount":0,"status":"pending","date":"2024-04-01","person":{"id":"p1","name":"Ana","relationship":"amigo","color":"#000"}}}`)
	}))
	defer srv.Close()

	debt, err := newClient(t, srv, true).CreateDebt(context.Background(), domain.DebtInput{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if debt.ID != "d9" || debt.Person == nil || debt.Person.Name != "Ana" {
		t.Errorf("unexpected debt %+v", debt)
	}
}

func TestGetDebtSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/debts/summary" || r.URL.Query().Get("month") != "2024-03" {
			t.Errorf("unexpected request %s", r.URL)
		}
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":{
			"summary":{"totalDebts":1000,"totalPaid":300,"totalPending":700,"installmentsCount":1},
			"debtsByPerson":{"Ana":{"total":1000,"paid":300,"pending":700,"debts":[]}},
			"installments":[]
		}}`)
	}))
	defer srv.Close()

	s, err := newClient(t, srv, true).GetDebtSummary(context.Background(), "2024-03")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !s.Summary.TotalPending.Equal(decimal.NewFromInt(700)) || s.Summary.InstallmentsCount != 1 {
		t.Errorf("unexpected summary %+v", s.Summary)
	}
	if _, ok := s.DebtsByPerson["Ana"]; !ok {
		t.Error("expected Ana in debtsByPerson")
	}
}

func TestLogin_AcceptsBothTokenSpellings(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"snake_case", `{"user":{"id":"u1","name":"Ana","email":"ana@x.com"},"access_token":"a","refresh_token":"r"}`},
		{"camelCase", `{"user":{"id":"u1","name":"Ana","email":"ana@x.com"},"token":"a","refreshToken":"r"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "" {
					t.Error("login must not send a bearer token")
				}
				writeEnvelope(w, http.StatusOK, `{"success":true,"data":`+tt.data+`}`)
			}))
			defer srv.Close()

			res, err := newClient(t, srv, true).Login(context.Background(), domain.LoginCredentials{Email: "ana@x.com", Password: "secret1"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			access, refresh := res.Tokens()
			if access != "a" || refresh != "r" {
				t.Errorf("expected a/r, got %s/%s", access, refresh)
			}
		})
	}
}

func TestMe_ReadsWrappedUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":{"user":{"id":"u1","name":"Ana","email":"ana@x.com","createdAt":"2024-01-01T00:00:00"}}}`)
	}))
	defer srv.Close()

	user, err := newClient(t, srv, true).Me(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.ID != "u1" || user.Email != "ana@x.com" {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "r1" {
			t.Errorf("expected refresh token in body, got %v", body)
		}
		writeEnvelope(w, http.StatusOK, `{"success":true,"data":{"access_token":"a2","token_type":"bearer"}}`)
	}))
	defer srv.Close()

	access, err := newClient(t, srv, false).Refresh(context.Background(), "r1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if access != "a2" {
		t.Errorf("expected a2, got %s", access)
	}
}
