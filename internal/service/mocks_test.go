package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/fintrack-go/internal/domain"

	"github.com/shopspring/decimal"
)

// --- Mocks ---

type mockFinanceAPI struct {
	mu sync.Mutex

	transactions []domain.Transaction
	listErr      error
	listMonths   []domain.MonthKey
	// listGate, when set, holds ListTransactions until it is closed.
	listGate    chan struct{}
	listEntered chan struct{}

	created   *domain.Transaction
	createErr error
	deleted   []string

	categories    []domain.Category
	categoriesErr error
	goals         []domain.FinancialGoal
	goalCalls     int
	methods       []domain.PaymentMethod
	methodsErr    error
	methodCalls   int
	mutationCalls int
}

func (m *mockFinanceAPI) ListTransactions(ctx context.Context, month domain.MonthKey) ([]domain.Transaction, error) {
	m.mu.Lock()
	m.listMonths = append(m.listMonths, month)
	gate, entered := m.listGate, m.listEntered
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]domain.Transaction(nil), m.transactions...), nil
}

func (m *mockFinanceAPI) CreateTransaction(_ context.Context, _ domain.TransactionInput) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	return m.created, m.createErr
}

func (m *mockFinanceAPI) UpdateTransaction(_ context.Context, _ string, _ domain.TransactionInput) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	return m.created, m.createErr
}

func (m *mockFinanceAPI) DeleteTransaction(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	m.deleted = append(m.deleted, id)
	return m.createErr
}

func (m *mockFinanceAPI) ListCategories(context.Context) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.categories, m.categoriesErr
}

func (m *mockFinanceAPI) CreateCategory(_ context.Context, in domain.CategoryInput) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	c := domain.Category{ID: "cat-new", Name: in.Name}
	m.categories = append(m.categories, c)
	return &c, nil
}

func (m *mockFinanceAPI) UpdateCategory(_ context.Context, id string, in domain.CategoryInput) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	return &domain.Category{ID: id, Name: in.Name}, nil
}

func (m *mockFinanceAPI) DeleteCategory(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	return nil
}

func (m *mockFinanceAPI) ListGoals(context.Context) ([]domain.FinancialGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goalCalls++
	return m.goals, nil
}

func (m *mockFinanceAPI) CreateGoal(_ context.Context, in domain.GoalInput) (*domain.FinancialGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	g := domain.FinancialGoal{ID: "goal-new", Title: in.Title, TargetAmount: in.TargetAmount}
	m.goals = append(m.goals, g)
	return &g, nil
}

func (m *mockFinanceAPI) UpdateGoal(_ context.Context, id string, in domain.GoalInput) (*domain.FinancialGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	return &domain.FinancialGoal{ID: id, Title: in.Title}, nil
}

func (m *mockFinanceAPI) DeleteGoal(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	return nil
}

func (m *mockFinanceAPI) ListPaymentMethods(context.Context) ([]domain.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methodCalls++
	return m.methods, m.methodsErr
}

func (m *mockFinanceAPI) CreatePaymentMethod(_ context.Context, in domain.PaymentMethodInput) (*domain.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	pm := domain.PaymentMethod{ID: "pm-new", Name: in.Name}
	m.methods = append(m.methods, pm)
	return &pm, nil
}

func (m *mockFinanceAPI) UpdatePaymentMethod(_ context.Context, id string, in domain.PaymentMethodInput) (*domain.PaymentMethod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	return &domain.PaymentMethod{ID: id, Name: in.Name}, nil
}

func (m *mockFinanceAPI) DeletePaymentMethod(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutationCalls++
	return nil
}

func (m *mockFinanceAPI) months() []domain.MonthKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MonthKey(nil), m.listMonths...)
}

type mockDebtAPI struct {
	mu sync.Mutex

	people    []domain.Person
	debts     []domain.Debt
	listErr   error
	listCalls int

	mutated    *domain.Debt
	mutateErr  error
	payment    *domain.DebtPayment
	summary    *domain.DebtSummaryResponse
	summaryErr error
	sumCalls   int
}

func (m *mockDebtAPI) ListPeople(context.Context) ([]domain.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.people, nil
}

func (m *mockDebtAPI) CreatePerson(_ context.Context, in domain.PersonInput) (*domain.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := domain.Person{ID: "p-new", Name: in.Name, Relationship: in.Relationship}
	m.people = append(m.people, p)
	return &p, nil
}

func (m *mockDebtAPI) UpdatePerson(_ context.Context, id string, in domain.PersonInput) (*domain.Person, error) {
	return &domain.Person{ID: id, Name: in.Name, Relationship: in.Relationship}, nil
}

func (m *mockDebtAPI) DeletePerson(context.Context, string) error {
	return nil
}

func (m *mockDebtAPI) ListDebts(context.Context, domain.MonthKey) ([]domain.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]domain.Debt(nil), m.debts...), nil
}

func (m *mockDebtAPI) CreateDebt(context.Context, domain.DebtInput) (*domain.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutated, m.mutateErr
}

func (m *mockDebtAPI) UpdateDebt(context.Context, string, domain.DebtInput) (*domain.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutated, m.mutateErr
}

func (m *mockDebtAPI) DeleteDebt(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutateErr
}

func (m *mockDebtAPI) UpdateDebtPayment(_ context.Context, _ string, p domain.DebtPayment) (*domain.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payment = &p
	return m.mutated, m.mutateErr
}

func (m *mockDebtAPI) GetDebtSummary(context.Context, domain.MonthKey) (*domain.DebtSummaryResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sumCalls++
	return m.summary, m.summaryErr
}

type mockAuthAPI struct {
	mu sync.Mutex

	user        *domain.User
	meErr       error
	meCalls     int
	loginRes    *domain.AuthResult
	loginErr    error
	logoutErr   error
	logoutCalls int
	refreshed   string
	refreshErr  error
}

func (m *mockAuthAPI) Login(context.Context, domain.LoginCredentials) (*domain.AuthResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginRes, m.loginErr
}

func (m *mockAuthAPI) Register(context.Context, domain.RegisterData) (*domain.AuthResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginRes, m.loginErr
}

func (m *mockAuthAPI) Me(context.Context) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meCalls++
	return m.user, m.meErr
}

func (m *mockAuthAPI) Refresh(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshed, m.refreshErr
}

func (m *mockAuthAPI) Logout(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutCalls++
	return m.logoutErr
}

func (m *mockAuthAPI) meCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meCalls
}

type staticMethods []domain.PaymentMethod

func (s staticMethods) PaymentMethods() []domain.PaymentMethod {
	return s
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(n int) *int {
	return &n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
