package service

import (
	"slices"
	"strings"

	"github.com/boddenberg/fintrack-go/internal/domain"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// GroupDebts buckets debts by the YYYY-MM of their date, oldest month first.
func GroupDebts(debts []domain.Debt) []domain.MonthlyDebtSummary {
	index := make(map[domain.MonthKey]int)
	out := []domain.MonthlyDebtSummary{}

	for _, d := range debts {
		key := domain.MonthKeyOf(d.Date)
		i, ok := index[key]
		if !ok {
			out = append(out, newDebtBucket(key))
			i = len(out) - 1
			index[key] = i
		}
		out[i].Debts = append(out[i].Debts, d)
	}

	for i := range out {
		totalDebtBucket(&out[i])
	}
	sortDebtBuckets(out)
	return out
}

// AddDebt returns buckets with d appended to its month.
func AddDebt(buckets []domain.MonthlyDebtSummary, d domain.Debt) []domain.MonthlyDebtSummary {
	out := cloneDebtBuckets(buckets)
	key := domain.MonthKeyOf(d.Date)

	i := findDebtBucket(out, key)
	if i < 0 {
		out = append(out, newDebtBucket(key))
		i = len(out) - 1
	}
	out[i].Debts = append(out[i].Debts, d)
	totalDebtBucket(&out[i])
	sortDebtBuckets(out)
	return out
}

// ReplaceDebt swaps the debt with d.ID for d, moving it when its month changed.
// An unknown id is added.
func ReplaceDebt(buckets []domain.MonthlyDebtSummary, d domain.Debt) []domain.MonthlyDebtSummary {
	key := domain.MonthKeyOf(d.Date)
	for bi := range buckets {
		for di := range buckets[bi].Debts {
			if buckets[bi].Debts[di].ID != d.ID {
				continue
			}
			if buckets[bi].Key() != key {
				return AddDebt(RemoveDebt(buckets, d.ID), d)
			}
			out := cloneDebtBuckets(buckets)
			out[bi].Debts[di] = d
			totalDebtBucket(&out[bi])
			return out
		}
	}
	return AddDebt(buckets, d)
}

// RemoveDebt drops the debt with id. An emptied bucket is kept with zero totals.
func RemoveDebt(buckets []domain.MonthlyDebtSummary, id string) []domain.MonthlyDebtSummary {
	out := cloneDebtBuckets(buckets)
	for i := range out {
		n := len(out[i].Debts)
		out[i].Debts = slices.DeleteFunc(out[i].Debts, func(d domain.Debt) bool {
			return d.ID == id
		})
		if len(out[i].Debts) != n {
			totalDebtBucket(&out[i])
		}
	}
	return out
}

// SummarizePerson rolls up the debts of person. Progress is paid/owed as a
// percentage, zero when nothing is owed.
func SummarizePerson(person domain.Person, debts []domain.Debt) domain.PersonSummary {
	s := domain.PersonSummary{
		Person:       person,
		TotalOwed:    decimal.Zero,
		TotalPaid:    decimal.Zero,
		TotalPending: decimal.Zero,
		Progress:     decimal.Zero,
		Open:         []domain.Debt{},
		Settled:      []domain.Debt{},
		Installments: []domain.Debt{},
	}

	for _, d := range debts {
		if d.PersonID != person.ID {
			continue
		}
		s.TotalOwed = s.TotalOwed.Add(d.Amount)
		s.TotalPaid = s.TotalPaid.Add(d.PaidAmount)

		switch {
		case d.Status.Open():
			s.Open = append(s.Open, d)
		case d.Status == domain.DebtPaid:
			s.Settled = append(s.Settled, d)
		}
		if d.IsInstallment() {
			s.Installments = append(s.Installments, d)
		}
	}

	s.TotalPending = s.TotalOwed.Sub(s.TotalPaid)
	if s.TotalOwed.IsPositive() {
		s.Progress = s.TotalPaid.Mul(hundred).Div(s.TotalOwed)
	}
	return s
}

// FlattenDebts returns every debt across buckets, oldest month first.
func FlattenDebts(buckets []domain.MonthlyDebtSummary) []domain.Debt {
	out := []domain.Debt{}
	for _, b := range buckets {
		out = append(out, b.Debts...)
	}
	return out
}

func newDebtBucket(key domain.MonthKey) domain.MonthlyDebtSummary {
	year, month := key.Split()
	if month == "" {
		month = string(key)
	}
	return domain.MonthlyDebtSummary{
		Month:    month,
		Year:     year,
		Debts:    []domain.Debt{},
		GroupKey: key,
	}
}

func findDebtBucket(buckets []domain.MonthlyDebtSummary, key domain.MonthKey) int {
	return slices.IndexFunc(buckets, func(b domain.MonthlyDebtSummary) bool {
		return b.Key() == key
	})
}

func totalDebtBucket(b *domain.MonthlyDebtSummary) {
	owed, paid := decimal.Zero, decimal.Zero
	for _, d := range b.Debts {
		owed = owed.Add(d.Amount)
		paid = paid.Add(d.PaidAmount)
	}
	b.TotalOwed = owed
	b.TotalPaid = paid
	b.TotalPending = owed.Sub(paid)
}

func sortDebtBuckets(buckets []domain.MonthlyDebtSummary) {
	slices.SortStableFunc(buckets, func(a, b domain.MonthlyDebtSummary) int {
		return strings.Compare(string(a.Key()), string(b.Key()))
	})
}

func cloneDebtBuckets(buckets []domain.MonthlyDebtSummary) []domain.MonthlyDebtSummary {
	out := make([]domain.MonthlyDebtSummary, len(buckets))
	for i, b := range buckets {
		b.Debts = slices.Clone(b.Debts)
		if b.Debts == nil {
			b.Debts = []domain.Debt{}
		}
		out[i] = b
	}
	return out
}
