package core

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Summary is the type-aware total of a transaction subset.
type Summary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
}

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	Category Category
	Amount   decimal.Decimal
}

// MonthAmount represents an amount aggregated by month.
type MonthAmount struct {
	Month  Month
	Amount decimal.Decimal
}

// Dashboard bundles everything the budget screen shows for one filter selection.
type Dashboard struct {
	Month     string
	Category  string
	Count     int
	Summary   Summary
	Breakdown []CategoryAmount // month filter only
	Monthly   []MonthAmount    // whole ledger
	Months    []Month
}

// Clone returns a copy that shares no slices with d.
func (d Dashboard) Clone() Dashboard {
	d.Breakdown = slices.Clone(d.Breakdown)
	d.Monthly = slices.Clone(d.Monthly)
	d.Months = slices.Clone(d.Months)
	return d
}
