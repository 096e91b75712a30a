package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Finance: entities as exchanged with /finance/* and /config/*
// ============================================================

// TransactionType is either income or expense.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// Transaction is a single income or expense entry.
type Transaction struct {
	ID                string          `json:"id"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	Type              TransactionType `json:"type"`
	Category          string          `json:"category"`
	Date              string          `json:"date"`
	IsRecurring       bool            `json:"is_recurring,omitempty"`
	Installments      *int            `json:"installments,omitempty"`
	TotalInstallments *int            `json:"total_installments,omitempty"`
	DueDate           *string         `json:"due_date,omitempty"`
	Receipt           *string         `json:"receipt,omitempty"`
	PaymentMethodID   *string         `json:"payment_method_id,omitempty"`
}

// TransactionInput is the body for POST/PUT /finance/transactions.
type TransactionInput struct {
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	Type              TransactionType `json:"type"`
	Category          string          `json:"category"`
	Date              string          `json:"date"`
	IsRecurring       bool            `json:"is_recurring"`
	Installments      *int            `json:"installments,omitempty"`
	TotalInstallments *int            `json:"total_installments,omitempty"`
	DueDate           *string         `json:"due_date,omitempty"`
	Receipt           *string         `json:"receipt,omitempty"`
	PaymentMethodID   *string         `json:"payment_method_id,omitempty"`
}

// Validate applies the client-side rules before the input is sent.
func (in *TransactionInput) Validate() error {
	if n := len([]rune(in.Description)); n < 3 || n > 100 {
		return &ErrValidation{Field: "description", Message: "Descrição deve ter entre 3 e 100 caracteres"}
	}
	if in.Amount.LessThan(minAmount) {
		return &ErrValidation{Field: "amount", Message: "Valor deve ser maior que zero"}
	}
	if !in.Type.Valid() {
		return &ErrValidation{Field: "type", Message: "tipo deve ser income ou expense"}
	}
	if _, err := time.Parse(DateLayout, in.Date); err != nil {
		return &ErrValidation{Field: "date", Message: "Data inválida"}
	}
	if in.DueDate != nil && *in.DueDate != "" {
		if _, err := time.Parse(DateLayout, *in.DueDate); err != nil {
			return &ErrValidation{Field: "due_date", Message: "Data inválida"}
		}
	}
	if in.Installments != nil && in.TotalInstallments != nil && *in.Installments > *in.TotalInstallments {
		return &ErrValidation{Field: "installments", Message: "A parcela atual não pode ser maior que o total de parcelas"}
	}
	return nil
}

// MonthlyFinanceSummary is the month bucket derived from the transaction list.
type MonthlyFinanceSummary struct {
	Month            string          `json:"month"`
	Year             int             `json:"year"`
	Transactions     []Transaction   `json:"transactions"`
	TotalIncome      decimal.Decimal `json:"totalIncome"`
	TotalExpenses    decimal.Decimal `json:"totalExpenses"`
	Balance          decimal.Decimal `json:"balance"`
	ProjectedBalance decimal.Decimal `json:"projectedBalance"`

	// GroupKey is the key the bucket was grouped under. It differs from
	// YYYY-MM only for dates that do not parse.
	GroupKey MonthKey `json:"-"`
}

// Key returns the bucket's "YYYY-MM" key, or the raw key of a malformed one.
func (m *MonthlyFinanceSummary) Key() MonthKey {
	if m.GroupKey != "" {
		return m.GroupKey
	}
	return bucketKey(m.Year, m.Month)
}

// Category classifies transactions.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// CategoryInput is the body for POST/PUT /config/categories.
type CategoryInput struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Validate applies the client-side rules before the input is sent.
func (in *CategoryInput) Validate() error {
	if in.Name == "" {
		return &ErrValidation{Field: "name", Message: "Campo obrigatório"}
	}
	return nil
}

// FinancialGoal is a savings target.
type FinancialGoal struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Deadline      string          `json:"deadline,omitempty"`
	Description   *string         `json:"description,omitempty"`
}

// Progress returns current/target capped at 1. A zero target has no progress.
func (g *FinancialGoal) Progress() decimal.Decimal {
	if !g.TargetAmount.IsPositive() {
		return decimal.Zero
	}
	p := g.CurrentAmount.Div(g.TargetAmount)
	if p.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return p
}

// Remaining returns how much is still missing to reach the target.
func (g *FinancialGoal) Remaining() decimal.Decimal {
	r := g.TargetAmount.Sub(g.CurrentAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// GoalInput is the body for POST/PUT /finance/goals.
type GoalInput struct {
	Title         string          `json:"title"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Deadline      string          `json:"deadline,omitempty"`
	Description   *string         `json:"description,omitempty"`
}

// Validate applies the client-side rules before the input is sent.
func (in *GoalInput) Validate() error {
	if in.Title == "" {
		return &ErrValidation{Field: "title", Message: "Campo obrigatório"}
	}
	if !in.TargetAmount.IsPositive() {
		return &ErrValidation{Field: "target_amount", Message: "Valor deve ser maior que zero"}
	}
	if in.CurrentAmount.IsNegative() {
		return &ErrValidation{Field: "current_amount", Message: "Valor inválido"}
	}
	if in.Deadline != "" {
		if _, err := time.Parse(DateLayout, in.Deadline); err != nil {
			return &ErrValidation{Field: "deadline", Message: "Data inválida"}
		}
	}
	return nil
}

// PaymentMethod is how an expense or debt was paid.
type PaymentMethod struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// PaymentMethodInput is the body for POST/PUT /finance/payment-methods.
type PaymentMethodInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Validate applies the client-side rules before the input is sent.
func (in *PaymentMethodInput) Validate() error {
	if in.Name == "" {
		return &ErrValidation{Field: "name", Message: "Campo obrigatório"}
	}
	return nil
}
