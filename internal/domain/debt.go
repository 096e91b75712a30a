package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Debts: people, debts and their summaries (/debts/*)
// ============================================================

// Relationship is how a person relates to the user.
type Relationship string

const (
	RelationshipFriend    Relationship = "amigo"
	RelationshipFamily    Relationship = "familiar"
	RelationshipColleague Relationship = "colega"
	RelationshipNeighbor  Relationship = "vizinho"
	RelationshipOther     Relationship = "outro"
)

// Valid reports whether r is one of the known relationships.
func (r Relationship) Valid() bool {
	switch r {
	case RelationshipFriend, RelationshipFamily, RelationshipColleague, RelationshipNeighbor, RelationshipOther:
		return true
	}
	return false
}

// Person is someone who owes the user, or is owed by them.
type Person struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        *string      `json:"email,omitempty"`
	Phone        *string      `json:"phone,omitempty"`
	Relationship Relationship `json:"relationship"`
	Color        string       `json:"color"`
	Notes        *string      `json:"notes,omitempty"`
}

// PersonInput is the body for POST/PUT /debts/people.
type PersonInput struct {
	Name         string       `json:"name"`
	Email        *string      `json:"email,omitempty"`
	Phone        *string      `json:"phone,omitempty"`
	Relationship Relationship `json:"relationship"`
	Color        string       `json:"color"`
	Notes        *string      `json:"notes,omitempty"`
}

// Validate applies the client-side rules before the input is sent.
func (in *PersonInput) Validate() error {
	if n := len([]rune(in.Name)); n < 2 || n > 50 {
		return &ErrValidation{Field: "name", Message: "Nome deve ter entre 2 e 50 caracteres"}
	}
	if !in.Relationship.Valid() {
		return &ErrValidation{Field: "relationship", Message: "Relacionamento inválido"}
	}
	if in.Email != nil && *in.Email != "" && !emailPattern.MatchString(*in.Email) {
		return &ErrValidation{Field: "email", Message: "Email inválido"}
	}
	return nil
}

// DebtStatus is the settlement state of a debt.
type DebtStatus string

const (
	DebtPending DebtStatus = "pending"
	DebtPartial DebtStatus = "partial"
	DebtPaid    DebtStatus = "paid"
)

// Valid reports whether s is a known status.
func (s DebtStatus) Valid() bool {
	return s == DebtPending || s == DebtPartial || s == DebtPaid
}

// Open reports whether the debt still has something to be paid.
func (s DebtStatus) Open() bool {
	return s == DebtPending || s == DebtPartial
}

// DeriveStatus returns the status implied by the paid amount.
// It is used for display and defaults only; a stored status is never rewritten.
func DeriveStatus(amount, paid decimal.Decimal) DebtStatus {
	switch {
	case !paid.IsPositive():
		return DebtPending
	case paid.LessThan(amount):
		return DebtPartial
	default:
		return DebtPaid
	}
}

// Debt is an amount owed by a person.
type Debt struct {
	ID                string          `json:"id"`
	PersonID          string          `json:"person_id"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	Status            DebtStatus      `json:"status"`
	Date              string          `json:"date"`
	DueDate           *string         `json:"due_date,omitempty"`
	Installments      *int            `json:"installments,omitempty"`
	TotalInstallments *int            `json:"total_installments,omitempty"`
	Notes             *string         `json:"notes,omitempty"`
	Receipt           *string         `json:"receipt,omitempty"`
	PaymentMethodID   *string         `json:"payment_method_id,omitempty"`
	Person            *Person         `json:"person,omitempty"`
}

// Pending returns amount minus paid_amount.
func (d *Debt) Pending() decimal.Decimal {
	return d.Amount.Sub(d.PaidAmount)
}

// IsInstallment reports whether the debt is split into more than one installment.
func (d *Debt) IsInstallment() bool {
	return d.TotalInstallments != nil && *d.TotalInstallments > 1
}

// DebtInput is the body for POST/PUT /debts.
type DebtInput struct {
	PersonID          string          `json:"person_id"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	Status            DebtStatus      `json:"status"`
	Date              string          `json:"date"`
	DueDate           *string         `json:"due_date,omitempty"`
	Installments      *int            `json:"installments,omitempty"`
	TotalInstallments *int            `json:"total_installments,omitempty"`
	Notes             *string         `json:"notes,omitempty"`
	Receipt           *string         `json:"receipt,omitempty"`
	PaymentMethodID   *string         `json:"payment_method_id,omitempty"`
}

// Validate applies the client-side rules before the input is sent.
// An empty status is filled from the paid amount.
func (in *DebtInput) Validate() error {
	if in.PersonID == "" {
		return &ErrValidation{Field: "person_id", Message: "Campo obrigatório"}
	}
	if n := len([]rune(in.Description)); n < 3 || n > 100 {
		return &ErrValidation{Field: "description", Message: "Descrição deve ter entre 3 e 100 caracteres"}
	}
	if in.Amount.LessThan(minAmount) {
		return &ErrValidation{Field: "amount", Message: "Valor deve ser maior que zero"}
	}
	if in.PaidAmount.IsNegative() {
		return &ErrValidation{Field: "paid_amount", Message: "Valor pago não pode ser negativo"}
	}
	if in.PaidAmount.GreaterThan(in.Amount) {
		return &ErrValidation{Field: "paid_amount", Message: MsgPaidOverAmount}
	}
	if _, err := time.Parse(DateLayout, in.Date); err != nil {
		return &ErrValidation{Field: "date", Message: "Data inválida"}
	}
	if in.Status == DebtPartial && !in.PaidAmount.IsPositive() {
		return &ErrValidation{Field: "paid_amount", Message: "Para pagamento parcial, informe o valor pago"}
	}
	if in.Status == "" {
		in.Status = DeriveStatus(in.Amount, in.PaidAmount)
	} else if !in.Status.Valid() {
		return &ErrValidation{Field: "status", Message: "Status inválido"}
	}
	return nil
}

// MsgPaidOverAmount rejects a paid amount above the debt's amount.
const MsgPaidOverAmount = "Valor pago não pode ser maior que o valor total"

// DebtPayment is the body for PATCH /debts/{id}/payment.
type DebtPayment struct {
	PaidAmount decimal.Decimal `json:"paid_amount"`
	Notes      *string         `json:"notes,omitempty"`
}

// Validate rejects negative payments.
func (p *DebtPayment) Validate() error {
	if p.PaidAmount.IsNegative() {
		return &ErrValidation{Field: "paid_amount", Message: "Valor pago não pode ser negativo"}
	}
	return nil
}

// ValidateAgainst additionally rejects a payment above the amount of d.
func (p *DebtPayment) ValidateAgainst(d *Debt) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if d != nil && p.PaidAmount.GreaterThan(d.Amount) {
		return &ErrValidation{Field: "paid_amount", Message: MsgPaidOverAmount}
	}
	return nil
}

// MonthlyDebtSummary is the month bucket derived from the debt list.
type MonthlyDebtSummary struct {
	Month        string          `json:"month"`
	Year         int             `json:"year"`
	Debts        []Debt          `json:"debts"`
	TotalOwed    decimal.Decimal `json:"totalOwed"`
	TotalPaid    decimal.Decimal `json:"totalPaid"`
	TotalPending decimal.Decimal `json:"totalPending"`

	// GroupKey is the key the bucket was grouped under. It differs from
	// YYYY-MM only for dates that do not parse.
	GroupKey MonthKey `json:"-"`
}

// Key returns the bucket's "YYYY-MM" key, or the raw key of a malformed one.
func (m *MonthlyDebtSummary) Key() MonthKey {
	if m.GroupKey != "" {
		return m.GroupKey
	}
	return bucketKey(m.Year, m.Month)
}

// PersonSummary is the per-person rollup shown next to a person's debts.
type PersonSummary struct {
	Person       Person          `json:"person"`
	TotalOwed    decimal.Decimal `json:"totalOwed"`
	TotalPaid    decimal.Decimal `json:"totalPaid"`
	TotalPending decimal.Decimal `json:"totalPending"`
	Progress     decimal.Decimal `json:"progress"`
	Open         []Debt          `json:"open"`
	Settled      []Debt          `json:"settled"`
	Installments []Debt          `json:"installments"`
}

// DebtSummary holds the server-computed totals for a month.
type DebtSummary struct {
	TotalDebts        decimal.Decimal `json:"totalDebts"`
	TotalPaid         decimal.Decimal `json:"totalPaid"`
	TotalPending      decimal.Decimal `json:"totalPending"`
	InstallmentsCount int             `json:"installmentsCount"`
}

// DebtByPerson groups a month's debts under a person's name.
type DebtByPerson struct {
	Total   decimal.Decimal `json:"total"`
	Paid    decimal.Decimal `json:"paid"`
	Pending decimal.Decimal `json:"pending"`
	Debts   []Debt          `json:"debts"`
}

// DebtInstallment is one installment line of the server summary.
type DebtInstallment struct {
	ID                 string          `json:"id"`
	Description        string          `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	CurrentInstallment int             `json:"currentInstallment"`
	TotalInstallments  int             `json:"totalInstallments"`
	DueDate            string          `json:"dueDate"`
	Person             string          `json:"person"`
	Status             DebtStatus      `json:"status"`
}

// DebtSummaryResponse is the payload of GET /debts/summary.
type DebtSummaryResponse struct {
	Summary       DebtSummary             `json:"summary"`
	DebtsByPerson map[string]DebtByPerson `json:"debtsByPerson"`
	Installments  []DebtInstallment       `json:"installments"`
}

var minAmount = decimal.RequireFromString("0.01")
