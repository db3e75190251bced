package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Type = "Income"
	Expense Type = "Expense"
)

// FilterAll matches every value of a filter dimension.
const FilterAll = "All"

// DateLayout is the persisted calendar-date form.
const DateLayout = "2006-01-02"

type (
	// Type says whether money came in or went out. The sign of a
	// transaction lives here, never in Amount.
	Type string

	Category string

	Date struct {
		time.Time
	}

	Transaction struct {
		Date     Date
		Type     Type
		Category Category
		Amount   decimal.Decimal
		Note     string
	}
)

// Categories is the closed category set in display order.
var Categories = []Category{
	"Food",
	"Transport",
	"Rent",
	"Utilities",
	"Internet",
	"Phone",
	"Entertainment",
	"Shopping",
	"Health",
	"Education",
	"Subscriptions",
	"Travel",
	"Gifts",
	"Salary",
	"Savings",
	"Other",
}

// Types lists the transaction types in display order.
var Types = []Type{Income, Expense}

var categoryIndex = func() map[Category]int {
	m := make(map[Category]int, len(Categories))
	for i, c := range Categories {
		m[c] = i
	}
	return m
}()

var (
	ErrValidation      = errors.New("validation failed")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidType     = errors.New("invalid transaction type")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrInvalidMonth    = errors.New("invalid month")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate accepts YYYY-MM-DD and the datetime forms older ledger files
// carry. The time of day is discarded.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// String returns the date formatted as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// Month returns the month the date falls in.
func (d Date) Month() Month {
	return MonthOf(d.Time)
}

// Validate rejects the zero date and years a YYYY-MM-DD key cannot hold.
func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	if y := d.Year(); y < 1 || y > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidDate, y)
	}
	return nil
}

// ParseType accepts the verbatim type labels only.
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(s))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

func (t Type) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, string(t))
	}
}

func (t Type) String() string {
	return string(t)
}

// ParseCategory accepts one of the fixed category labels, verbatim.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

func (c Category) Validate() error {
	if _, ok := categoryIndex[c]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, string(c))
	}
	return nil
}

func (c Category) String() string {
	return string(c)
}

// Order is the position of c in Categories, or -1 for unknown labels.
func (c Category) Order() int {
	if i, ok := categoryIndex[c]; ok {
		return i
	}
	return -1
}

// Month is the derived year-month of the transaction date.
func (t Transaction) Month() Month {
	return t.Date.Month()
}

// Validate reports the first violated invariant, wrapped in ErrValidation.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := t.Type.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := t.Category.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: %w", ErrValidation, ErrNegativeAmount)
	}
	return nil
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeNote trims surrounding space and folds CRLF and lone CR to LF.
func NormalizeNote(note string) string {
	return strings.TrimSpace(lineBreaks.Replace(note))
}

// NewTransaction normalizes its inputs and validates the result. The amount
// is rounded to cents; the note is trimmed and its line breaks become "\n",
// the form a ledger file reads back.
func NewTransaction(date Date, typ Type, category Category, amount decimal.Decimal, note string) (Transaction, error) {
	tx := Transaction{
		Date:     DateOf(date.Time),
		Type:     typ,
		Category: category,
		Amount:   RoundAmount(amount),
		Note:     NormalizeNote(note),
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}
