package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/boddenberg/fintrack-go/internal/domain"
)

// ============================================================
// Transactions: /finance/transactions
// ============================================================

// ListTransactions returns the transactions, filtered server-side when month is set.
func (c *Client) ListTransactions(ctx context.Context, month domain.MonthKey) ([]domain.Transaction, error) {
	data, err := c.call(ctx, request{op: "transactions.list", method: http.MethodGet, path: "/finance/transactions" + monthQuery(month), auth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Transaction](data, "transactions")
}

func (c *Client) CreateTransaction(ctx context.Context, in domain.TransactionInput) (*domain.Transaction, error) {
	data, err := c.call(ctx, request{op: "transactions.create", method: http.MethodPost, path: "/finance/transactions", auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Transaction](data, "transaction")
}

func (c *Client) UpdateTransaction(ctx context.Context, id string, in domain.TransactionInput) (*domain.Transaction, error) {
	data, err := c.call(ctx, request{op: "transactions.update", method: http.MethodPut, path: "/finance/transactions/" + url.PathEscape(id), auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Transaction](data, "transaction")
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	_, err := c.call(ctx, request{op: "transactions.delete", method: http.MethodDelete, path: "/finance/transactions/" + url.PathEscape(id), auth: true})
	return err
}

// ============================================================
// Categories: /config/categories
// ============================================================

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	data, err := c.call(ctx, request{op: "categories.list", method: http.MethodGet, path: "/config/categories", auth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Category](data, "categories")
}

func (c *Client) CreateCategory(ctx context.Context, in domain.CategoryInput) (*domain.Category, error) {
	data, err := c.call(ctx, request{op: "categories.create", method: http.MethodPost, path: "/config/categories", auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Category](data, "category")
}

func (c *Client) UpdateCategory(ctx context.Context, id string, in domain.CategoryInput) (*domain.Category, error) {
	data, err := c.call(ctx, request{op: "categories.update", method: http.MethodPut, path: "/config/categories/" + url.PathEscape(id), auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Category](data, "category")
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	_, err := c.call(ctx, request{op: "categories.delete", method: http.MethodDelete, path: "/config/categories/" + url.PathEscape(id), auth: true})
	return err
}

// ============================================================
// Goals: /finance/goals
// ============================================================

func (c *Client) ListGoals(ctx context.Context) ([]domain.FinancialGoal, error) {
	data, err := c.call(ctx, request{op: "goals.list", method: http.MethodGet, path: "/finance/goals", auth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.FinancialGoal](data, "goals")
}

func (c *Client) CreateGoal(ctx context.Context, in domain.GoalInput) (*domain.FinancialGoal, error) {
	data, err := c.call(ctx, request{op: "goals.create", method: http.MethodPost, path: "/finance/goals", auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.FinancialGoal](data, "goal")
}

func (c *Client) UpdateGoal(ctx context.Context, id string, in domain.GoalInput) (*domain.FinancialGoal, error) {
	data, err := c.call(ctx, request{op: "goals.update", method: http.MethodPut, path: "/finance/goals/" + url.PathEscape(id), auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.FinancialGoal](data, "goal")
}

func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	_, err := c.call(ctx, request{op: "goals.delete", method: http.MethodDelete, path: "/finance/goals/" + url.PathEscape(id), auth: true})
	return err
}

// ============================================================
// Payment methods: /finance/payment-methods/ (trailing slash on the collection)
// ============================================================

func (c *Client) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	data, err := c.call(ctx, request{op: "payment_methods.list", method: http.MethodGet, path: "/finance/payment-methods/", auth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.PaymentMethod](data, "payment_methods")
}

func (c *Client) CreatePaymentMethod(ctx context.Context, in domain.PaymentMethodInput) (*domain.PaymentMethod, error) {
	data, err := c.call(ctx, request{op: "payment_methods.create", method: http.MethodPost, path: "/finance/payment-methods/", auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.PaymentMethod](data, "payment_method")
}

func (c *Client) UpdatePaymentMethod(ctx context.Context, id string, in domain.PaymentMethodInput) (*domain.PaymentMethod, error) {
	data, err := c.call(ctx, request{op: "payment_methods.update", method: http.MethodPut, path: "/finance/payment-methods/" + url.PathEscape(id), auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.PaymentMethod](data, "payment_method")
}

func (c *Client) DeletePaymentMethod(ctx context.Context, id string) error {
	_, err := c.call(ctx, request{op: "payment_methods.delete", method: http.MethodDelete, path: "/finance/payment-methods/" + url.PathEscape(id), auth: true})
	return err
}
