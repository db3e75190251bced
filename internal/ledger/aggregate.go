package ledger

import (
	"fmt"
	"sort"

	"btracker/internal/core"

	"github.com/shopspring/decimal"
)

// MatchFilter builds the predicate for a month/category selection. Either
// value may be core.FilterAll.
func MatchFilter(month, category string) (func(core.Transaction) bool, error) {
	var (
		wantMonth    core.Month
		anyMonth     = month == "" || month == core.FilterAll
		wantCategory core.Category
		anyCategory  = category == "" || category == core.FilterAll
	)
	if !anyMonth {
		m, err := core.ParseMonth(month)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrValidation, err)
		}
		wantMonth = m
	}
	if !anyCategory {
		c, err := core.ParseCategory(category)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrValidation, err)
		}
		wantCategory = c
	}

	return func(tx core.Transaction) bool {
		if !anyMonth && !wantMonth.Contains(tx.Date) {
			return false
		}
		if !anyCategory && tx.Category != wantCategory {
			return false
		}
		return true
	}, nil
}

// Filter returns the transactions matching both selections, in ledger order.
func Filter(txs []core.Transaction, month, category string) ([]core.Transaction, error) {
	match, err := MatchFilter(month, category)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if match(tx) {
			out = append(out, tx)
		}
	}
	return out, nil
}

// ListMonths returns the distinct months present, ascending.
func ListMonths(txs []core.Transaction) []core.Month {
	seen := make(map[string]struct{})
	months := make([]core.Month, 0)
	for _, tx := range txs {
		m := tx.Month()
		key := m.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months
}

// Summarize totals income and expense separately. Empty input is all zero.
func Summarize(txs []core.Transaction) core.Summary {
	income, expense := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case core.Income:
			income = income.Add(tx.Amount)
		case core.Expense:
			expense = expense.Add(tx.Amount)
		}
	}
	return core.Summary{
		Income:  income,
		Expense: expense,
		Balance: income.Sub(expense),
	}
}

// CategoryBreakdown sums expenses per category. Categories without expense
// rows are absent. Results follow the fixed category order.
func CategoryBreakdown(txs []core.Transaction) []core.CategoryAmount {
	sums := make(map[core.Category]decimal.Decimal)
	for _, tx := range txs {
		if tx.Type != core.Expense {
			continue
		}
		if cur, ok := sums[tx.Category]; ok {
			sums[tx.Category] = cur.Add(tx.Amount)
		} else {
			sums[tx.Category] = tx.Amount
		}
	}

	out := make([]core.CategoryAmount, 0, len(sums))
	for _, c := range core.Categories {
		if amount, ok := sums[c]; ok {
			out = append(out, core.CategoryAmount{Category: c, Amount: amount})
		}
	}
	return out
}

// MonthlyTotals sums the raw amount per month regardless of type, so
// income and expense add up together. Ascending by month.
func MonthlyTotals(txs []core.Transaction) []core.MonthAmount {
	return groupByMonth(txs, func(tx core.Transaction) decimal.Decimal {
		return tx.Amount
	})
}

// MonthlyNet is income minus expense per month, ascending by month.
func MonthlyNet(txs []core.Transaction) []core.MonthAmount {
	return groupByMonth(txs, func(tx core.Transaction) decimal.Decimal {
		if tx.Type == core.Expense {
			return tx.Amount.Neg()
		}
		return tx.Amount
	})
}

func groupByMonth(txs []core.Transaction, value func(core.Transaction) decimal.Decimal) []core.MonthAmount {
	sums := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		key := tx.Month().String()
		if cur, ok := sums[key]; ok {
			sums[key] = cur.Add(value(tx))
		} else {
			sums[key] = value(tx)
		}
	}

	out := make([]core.MonthAmount, 0, len(sums))
	for _, m := range ListMonths(txs) {
		out = append(out, core.MonthAmount{Month: m, Amount: sums[m.String()]})
	}
	return out
}
