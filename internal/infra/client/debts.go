package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/boddenberg/fintrack-go/internal/domain"
)

// ============================================================
// People: /debts/people
// ============================================================

func (c *Client) ListPeople(ctx context.Context) ([]domain.Person, error) {
	data, err := c.call(ctx, request{op: "people.list", method: http.MethodGet, path: "/debts/people", auth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Person](data, "people")
}

func (c *Client) CreatePerson(ctx context.Context, in domain.PersonInput) (*domain.Person, error) {
	data, err := c.call(ctx, request{op: "people.create", method: http.MethodPost, path: "/debts/people", auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Person](data, "person")
}

func (c *Client) UpdatePerson(ctx context.Context, id string, in domain.PersonInput) (*domain.Person, error) {
	data, err := c.call(ctx, request{op: "people.update", method: http.MethodPut, path: "/debts/people/" + url.PathEscape(id), auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Person](data, "person")
}

func (c *Client) DeletePerson(ctx context.Context, id string) error {
	_, err := c.call(ctx, request{op: "people.delete", method: http.MethodDelete, path: "/debts/people/" + url.PathEscape(id), auth: true})
	return err
}

// ============================================================
// Debts: /debts
// ============================================================

// ListDebts returns the debts, filtered server-side when month is set.
func (c *Client) ListDebts(ctx context.Context, month domain.MonthKey) ([]domain.Debt, error) {
	data, err := c.call(ctx, request{op: "debts.list", method: http.MethodGet, path: "/debts" + monthQuery(month), auth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Debt](data, "debts")
}

func (c *Client) CreateDebt(ctx context.Context, in domain.DebtInput) (*domain.Debt, error) {
	data, err := c.call(ctx, request{op: "debts.create", method: http.MethodPost, path: "/debts", auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Debt](data, "debt")
}

func (c *Client) UpdateDebt(ctx context.Context, id string, in domain.DebtInput) (*domain.Debt, error) {
	data, err := c.call(ctx, request{op: "debts.update", method: http.MethodPut, path: "/debts/" + url.PathEscape(id), auth: true, body: in})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Debt](data, "debt")
}

func (c *Client) DeleteDebt(ctx context.Context, id string) error {
	_, err := c.call(ctx, request{op: "debts.delete", method: http.MethodDelete, path: "/debts/" + url.PathEscape(id), auth: true})
	return err
}

// UpdateDebtPayment records a (partial) payment. PATCH /debts/{id}/payment.
func (c *Client) UpdateDebtPayment(ctx context.Context, id string, p domain.DebtPayment) (*domain.Debt, error) {
	data, err := c.call(ctx, request{op: "debts.payment", method: http.MethodPatch, path: "/debts/" + url.PathEscape(id) + "/payment", auth: true, body: p})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.Debt](data, "debt")
}

// GetDebtSummary returns the server-computed summary of a month.
func (c *Client) GetDebtSummary(ctx context.Context, month domain.MonthKey) (*domain.DebtSummaryResponse, error) {
	data, err := c.call(ctx, request{op: "debts.summary", method: http.MethodGet, path: "/debts/summary" + monthQuery(month), auth: true})
	if err != nil {
		return nil, err
	}
	summary, err := decodeBare[domain.DebtSummaryResponse](data, "debt summary")
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return &domain.DebtSummaryResponse{DebtsByPerson: map[string]domain.DebtByPerson{}}, nil
	}
	return summary, nil
}
