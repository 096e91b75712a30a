package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"
	"github.com/boddenberg/fintrack-go/internal/handler"
	"github.com/boddenberg/fintrack-go/internal/infra/broadcast"
	"github.com/boddenberg/fintrack-go/internal/infra/cache"
	"github.com/boddenberg/fintrack-go/internal/infra/client"
	"github.com/boddenberg/fintrack-go/internal/infra/observability"
	"github.com/boddenberg/fintrack-go/internal/infra/resilience"
	"github.com/boddenberg/fintrack-go/internal/infra/storage"
	"github.com/boddenberg/fintrack-go/internal/service"

	"go.uber.org/zap"
)

// fakeBackend answers the REST endpoints the local API reaches.
type fakeBackend struct {
	created     atomic.Bool
	summaryHits atomic.Int32
	logouts     atomic.Int32
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reply := func(status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}

	switch r.Method + " " + r.URL.Path {
	case "POST /auth/login":
		reply(http.StatusOK, `{"success":true,"data":{"user":{"id":"u1","name":"Ana","email":"ana@x.com"},"access_token":"tok","refresh_token":"ref"}}`)
	case "POST /auth/logout":
		b.logouts.Add(1)
		reply(http.StatusOK, `{"success":true}`)
	case "GET /finance/transactions":
		txs := `{"id":"t1","description":"Salário","amount":1000,"type":"income","category":"c1","date":"2024-03-05"}`
		if b.created.Load() {
			txs += `,{"id":"t2","description":"Mercado","amount":300,"type":"expense","category":"c2","date":"2024-03-10"}`
		}
		reply(http.StatusOK, `{"success":true,"data":[`+txs+`]}`)
	case "POST /finance/transactions":
		b.created.Store(true)
		reply(http.StatusOK, `{"success":true,"data":{"transaction":{"id":"t2","description":"Mercado","amount":300,"type":"expense","category":"c2","date":"2024-03-10"}}}`)
	case "GET /config/categories", "GET /finance/goals":
		reply(http.StatusOK, `{"success":true,"data":[]}`)
	case "GET /finance/payment-methods/":
		reply(http.StatusOK, `{"success":true,"data":[{"id":"pm1","name":"Pix"}]}`)
	case "GET /debts/summary":
		b.summaryHits.Add(1)
		reply(http.StatusOK, `{"success":true,"data":{"summary":{"totalDebts":100,"totalPaid":40,"totalPending":60,"installmentsCount":0},"debtsByPerson":{},"installments":[]}}`)
	case "PUT /debts/missing":
		reply(http.StatusNotFound, `{"success":false,"message":"Dívida não encontrada"}`)
	default:
		reply(http.StatusNotFound, `{"success":false,"message":"rota desconhecida"}`)
	}
}

type testAPI struct {
	router  http.Handler
	backend *fakeBackend
	store   *storage.MemoryStore
	session *service.SessionStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := storage.NewMemoryStore()
	bus := broadcast.NewBus("tab-a", logger)

	api := client.New(
		srv.Client(),
		srv.URL,
		store,
		resilience.NewCircuitBreaker("test", client.IsTransient),
		resilience.Config{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxConcurrency: 4},
		metrics,
		logger,
	)

	summaries := cache.New[*domain.DebtSummaryResponse](time.Minute)
	t.Cleanup(summaries.Close)

	session := service.NewSessionStore(api, store, bus, service.SessionConfig{}, metrics, logger)
	finance := service.NewFinanceAggregator(api, store, metrics, logger)
	debts := service.NewDebtAggregator(api, store, finance, summaries, metrics, logger)

	router := handler.NewRouter(handler.Services{
		Session:     session,
		Finance:     finance,
		Debts:       debts,
		Preferences: service.NewPreferenceStore(store, bus, logger),
		Storage:     store,
	}, metrics, logger)

	session.Start(context.Background())
	return &testAPI{router: router, backend: backend, store: store, session: session}
}

func (a *testAPI) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func (a *testAPI) login(t *testing.T) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/session/login", `{"email":"ana@x.com","password":"secret1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	state := decodeInto[domain.SessionState](t, rec)
	if !state.IsAuthenticated || state.User == nil || state.User.ID != "u1" {
		t.Fatalf("expected authenticated as u1, got %+v", state)
	}
}

func TestAPI_LoginActivateAndCreateTransaction(t *testing.T) {
	a := newTestAPI(t)
	a.login(t)

	if tok, ok, _ := a.store.Get(context.Background(), domain.KeyAuthToken); !ok || tok != "tok" {
		t.Fatalf("expected token persisted, got %q", tok)
	}

	if rec := a.do(t, http.MethodPut, "/v1/finance/month", `{"month":"2024-03"}`); rec.Code != http.StatusOK {
		t.Fatalf("month: expected 200, got %d", rec.Code)
	}
	rec := a.do(t, http.MethodPut, "/v1/finance/active", `{"active":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	state := decodeInto[domain.FinanceState](t, rec)
	if len(state.Transactions) != 1 || len(state.PaymentMethods) != 1 {
		t.Fatalf("expected initial load, got %d transactions and %d payment methods",
			len(state.Transactions), len(state.PaymentMethods))
	}

	rec = a.do(t, http.MethodPost, "/v1/finance/transactions",
		`{"description":"Mercado","amount":300,"type":"expense","category":"c2","date":"2024-03-10"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, http.MethodGet, "/v1/finance/months/2024-03", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("month summary: expected 200, got %d", rec.Code)
	}
	march := decodeInto[domain.MonthlyFinanceSummary](t, rec)
	if march.Balance.String() != "700" {
		t.Errorf("expected march balance 700, got %s", march.Balance)
	}

	if rec := a.do(t, http.MethodGet, "/v1/finance/months/2030-01", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a month without data, got %d", rec.Code)
	}

	// debts borrow the finance payment methods
	debts := decodeInto[domain.DebtState](t, a.do(t, http.MethodGet, "/v1/debts/", ""))
	if len(debts.PaymentMethods) != 1 {
		t.Errorf("expected borrowed payment methods, got %+v", debts.PaymentMethods)
	}
}

func TestAPI_ValidationErrorsCarryField(t *testing.T) {
	a := newTestAPI(t)
	a.login(t)

	rec := a.do(t, http.MethodPost, "/v1/finance/transactions",
		`{"description":"ok","amount":10,"type":"expense","date":"2024-03-10"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeInto[map[string]string](t, rec)
	if body["field"] != "description" {
		t.Errorf("expected description field, got %+v", body)
	}

	if rec := a.do(t, http.MethodGet, "/v1/debts/summary?month=março", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed month, got %d", rec.Code)
	}
}

func TestAPI_DebtSummaryIsCached(t *testing.T) {
	a := newTestAPI(t)
	a.login(t)

	for i := 0; i < 2; i++ {
		rec := a.do(t, http.MethodGet, "/v1/debts/summary?month=2024-03", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("summary: expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		s := decodeInto[domain.DebtSummaryResponse](t, rec)
		if s.Summary.TotalPending.String() != "60" {
			t.Errorf("expected pending 60, got %s", s.Summary.TotalPending)
		}
	}
	if n := a.backend.summaryHits.Load(); n != 1 {
		t.Errorf("expected one backend summary call, got %d", n)
	}
}

func TestAPI_BackendErrorsKeepStatusAndMessage(t *testing.T) {
	a := newTestAPI(t)
	a.login(t)

	rec := a.do(t, http.MethodPut, "/v1/debts/list/missing",
		`{"person_id":"p1","description":"Cinema","amount":60,"date":"2024-03-22"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeInto[map[string]string](t, rec)
	if body["error"] != "Dívida não encontrada" {
		t.Errorf("expected backend message, got %q", body["error"])
	}

	state := decodeInto[domain.DebtState](t, a.do(t, http.MethodGet, "/v1/debts/", ""))
	if state.Error != "Dívida não encontrada" {
		t.Errorf("expected error kept in state, got %q", state.Error)
	}
	if rec := a.do(t, http.MethodPost, "/v1/debts/clear-error", ""); decodeInto[domain.DebtState](t, rec).Error != "" {
		t.Error("expected error cleared")
	}
}

func TestAPI_LogoutLocksDataRoutes(t *testing.T) {
	a := newTestAPI(t)
	a.login(t)

	if rec := a.do(t, http.MethodPost, "/v1/session/logout", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", rec.Code)
	}
	if a.backend.logouts.Load() != 1 {
		t.Error("expected backend logout called")
	}
	if _, ok, _ := a.store.Get(context.Background(), domain.KeyAuthToken); ok {
		t.Error("expected token removed")
	}
	if rec := a.do(t, http.MethodGet, "/v1/finance/", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestAPI_Preferences(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPut, "/v1/preferences", `{"activeTab":"debts","hasSetDefaultTab":true,"darkMode":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeInto[domain.Preferences](t, a.do(t, http.MethodGet, "/v1/preferences", ""))
	want := domain.Preferences{ActiveTab: "debts", HasSetDefaultTab: true, DarkMode: true}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	if rec := a.do(t, http.MethodPut, "/v1/preferences", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
