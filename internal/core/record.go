package core

import (
	"errors"
	"fmt"
	"strings"
)

// Columns is the persisted column order of the ledger file.
var Columns = []string{"date", "type", "category", "amount", "note"}

// RequiredColumns must be present in a ledger header; note is optional.
var RequiredColumns = []string{"date", "type", "category", "amount"}

// ErrParseDate marks a stored row whose date does not parse.
var ErrParseDate = errors.New("unparseable date")

// Record is a stored row in text form, as found in a ledger file or table.
type Record struct {
	Date     string
	Type     string
	Category string
	Amount   string
	Note     string
}

// ToRecord renders t in its persisted text form.
func (t Transaction) ToRecord() Record {
	return Record{
		Date:     t.Date.String(),
		Type:     t.Type.String(),
		Category: t.Category.String(),
		Amount:   FormatAmount(t.Amount),
		Note:     t.Note,
	}
}

// Fields returns the record in Columns order.
func (r Record) Fields() []string {
	return []string{r.Date, r.Type, r.Category, r.Amount, r.Note}
}

// ParseRecord coerces a stored row into a Transaction. A bad date yields
// ErrParseDate; other malformed fields yield the matching validation error.
// Notes are kept as stored.
func ParseRecord(r Record) (Transaction, error) {
	date, err := ParseDate(r.Date)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: %q", ErrParseDate, r.Date)
	}
	typ, err := ParseType(r.Type)
	if err != nil {
		return Transaction{}, err
	}
	category, err := ParseCategory(r.Category)
	if err != nil {
		return Transaction{}, err
	}
	amount, err := ParseAmount(strings.TrimSpace(r.Amount))
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		Date:     date,
		Type:     typ,
		Category: category,
		Amount:   amount,
		Note:     r.Note,
	}, nil
}
