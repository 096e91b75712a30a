package service

import (
	"slices"
	"strings"

	"github.com/boddenberg/fintrack-go/internal/domain"

	"github.com/shopspring/decimal"
)

// GroupTransactions buckets txs by the YYYY-MM of their own date and totals
// each bucket. Buckets come back in chronological order and projectedBalance
// is left at zero.
func GroupTransactions(txs []domain.Transaction) []domain.MonthlyFinanceSummary {
	index := make(map[domain.MonthKey]int)
	var out []domain.MonthlyFinanceSummary

	for _, tx := range txs {
		key := domain.MonthKeyOf(tx.Date)
		i, ok := index[key]
		if !ok {
			out = append(out, newFinanceBucket(key))
			i = len(out) - 1
			index[key] = i
		}
		out[i].Transactions = append(out[i].Transactions, tx)
	}

	for i := range out {
		totalFinanceBucket(&out[i])
	}
	sortFinanceBuckets(out)
	if out == nil {
		out = []domain.MonthlyFinanceSummary{}
	}
	return out
}

// AddTransaction returns buckets with tx appended to its month, creating the
// bucket when needed. Only that bucket is recomputed.
func AddTransaction(buckets []domain.MonthlyFinanceSummary, tx domain.Transaction) []domain.MonthlyFinanceSummary {
	out := cloneFinanceBuckets(buckets)
	key := domain.MonthKeyOf(tx.Date)

	i := findFinanceBucket(out, key)
	if i < 0 {
		out = append(out, newFinanceBucket(key))
		i = len(out) - 1
	}
	out[i].Transactions = append(out[i].Transactions, tx)
	totalFinanceBucket(&out[i])
	sortFinanceBuckets(out)
	return out
}

// ReplaceTransaction swaps the transaction with tx.ID for tx. A changed date
// moves it to the new month's bucket. An unknown id is added.
func ReplaceTransaction(buckets []domain.MonthlyFinanceSummary, tx domain.Transaction) []domain.MonthlyFinanceSummary {
	key := domain.MonthKeyOf(tx.Date)
	for bi := range buckets {
		for ti := range buckets[bi].Transactions {
			if buckets[bi].Transactions[ti].ID != tx.ID {
				continue
			}
			if buckets[bi].Key() == key {
				out := cloneFinanceBuckets(buckets)
				out[bi].Transactions[ti] = tx
				totalFinanceBucket(&out[bi])
				return out
			}
			return AddTransaction(RemoveTransaction(buckets, tx.ID), tx)
		}
	}
	return AddTransaction(buckets, tx)
}

// RemoveTransaction drops the transaction with id. Its bucket stays, with
// zero totals once empty.
func RemoveTransaction(buckets []domain.MonthlyFinanceSummary, id string) []domain.MonthlyFinanceSummary {
	out := cloneFinanceBuckets(buckets)
	for i := range out {
		n := len(out[i].Transactions)
		out[i].Transactions = slices.DeleteFunc(out[i].Transactions, func(tx domain.Transaction) bool {
			return tx.ID == id
		})
		if len(out[i].Transactions) != n {
			totalFinanceBucket(&out[i])
		}
	}
	return out
}

// FlattenTransactions returns every transaction across buckets, oldest month first.
func FlattenTransactions(buckets []domain.MonthlyFinanceSummary) []domain.Transaction {
	out := []domain.Transaction{}
	for _, b := range buckets {
		out = append(out, b.Transactions...)
	}
	return out
}

func newFinanceBucket(key domain.MonthKey) domain.MonthlyFinanceSummary {
	year, month := key.Split()
	if month == "" {
		month = string(key)
	}
	return domain.MonthlyFinanceSummary{
		Month:        month,
		Year:         year,
		Transactions: []domain.Transaction{},
		GroupKey:     key,
	}
}

func findFinanceBucket(buckets []domain.MonthlyFinanceSummary, key domain.MonthKey) int {
	return slices.IndexFunc(buckets, func(b domain.MonthlyFinanceSummary) bool {
		return b.Key() == key
	})
}

// totalFinanceBucket recomputes income, expenses and balance. The projected
// balance is not touched.
func totalFinanceBucket(b *domain.MonthlyFinanceSummary) {
	income, expenses := decimal.Zero, decimal.Zero
	for _, tx := range b.Transactions {
		switch tx.Type {
		case domain.TransactionIncome:
			income = income.Add(tx.Amount)
		case domain.TransactionExpense:
			expenses = expenses.Add(tx.Amount)
		}
	}
	b.TotalIncome = income
	b.TotalExpenses = expenses
	b.Balance = income.Sub(expenses)
}

func sortFinanceBuckets(buckets []domain.MonthlyFinanceSummary) {
	slices.SortStableFunc(buckets, func(a, b domain.MonthlyFinanceSummary) int {
		return strings.Compare(string(a.Key()), string(b.Key()))
	})
}

func cloneFinanceBuckets(buckets []domain.MonthlyFinanceSummary) []domain.MonthlyFinanceSummary {
	out := make([]domain.MonthlyFinanceSummary, len(buckets))
	for i, b := range buckets {
		b.Transactions = slices.Clone(b.Transactions)
		if b.Transactions == nil {
			b.Transactions = []domain.Transaction{}
		}
		out[i] = b
	}
	return out
}
