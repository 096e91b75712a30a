// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service
// layer from the REST backend, the durable storage and the broadcast channel.
package port

import (
	"context"

	"github.com/boddenberg/fintrack-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Purge()
}

// KeyValueStore is the durable storage shared by every process of the same user.
// Get reports ok=false for a missing key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Broadcaster propagates storage changes to every session-aware component,
// in this process and in the others sharing the same storage.
type Broadcaster interface {
	Publish(ctx context.Context, change domain.StorageChange) error
	Subscribe() (<-chan domain.StorageChange, func())
}

// AuthAPI covers /auth/*.
type AuthAPI interface {
	Login(ctx context.Context, creds domain.LoginCredentials) (*domain.AuthResult, error)
	Register(ctx context.Context, data domain.RegisterData) (*domain.AuthResult, error)
	Me(ctx context.Context) (*domain.User, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context) error
}

// FinanceAPI covers /finance/* and /config/categories.
type FinanceAPI interface {
	ListTransactions(ctx context.Context, month domain.MonthKey) ([]domain.Transaction, error)
	CreateTransaction(ctx context.Context, in domain.TransactionInput) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, in domain.TransactionInput) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, in domain.CategoryInput) (*domain.Category, error)
	UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListGoals(ctx context.Context) ([]domain.FinancialGoal, error)
	CreateGoal(ctx context.Context, in domain.GoalInput) (*domain.FinancialGoal, error)
	UpdateGoal(ctx context.Context, id string, in domain.GoalInput) (*domain.FinancialGoal, error)
	DeleteGoal(ctx context.Context, id string) error

	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	CreatePaymentMethod(ctx context.Context, in domain.PaymentMethodInput) (*domain.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, id string, in domain.PaymentMethodInput) (*domain.PaymentMethod, error)
	DeletePaymentMethod(ctx context.Context, id string) error
}

// DebtAPI covers /debts/*.
type DebtAPI interface {
	ListPeople(ctx context.Context) ([]domain.Person, error)
	CreatePerson(ctx context.Context, in domain.PersonInput) (*domain.Person, error)
	UpdatePerson(ctx context.Context, id string, in domain.PersonInput) (*domain.Person, error)
	DeletePerson(ctx context.Context, id string) error

	ListDebts(ctx context.Context, month domain.MonthKey) ([]domain.Debt, error)
	CreateDebt(ctx context.Context, in domain.DebtInput) (*domain.Debt, error)
	UpdateDebt(ctx context.Context, id string, in domain.DebtInput) (*domain.Debt, error)
	DeleteDebt(ctx context.Context, id string) error
	UpdateDebtPayment(ctx context.Context, id string, p domain.DebtPayment) (*domain.Debt, error)
	GetDebtSummary(ctx context.Context, month domain.MonthKey) (*domain.DebtSummaryResponse, error)
}

// PaymentMethodSource exposes the payment methods owned by the finance side.
type PaymentMethodSource interface {
	PaymentMethods() []domain.PaymentMethod
}
