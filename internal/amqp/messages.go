package amqp

import (
	"encoding/json"
	"time"

	"btracker/internal/core"
)

// EventTransactionAdded is the message type set on every published delivery.
const EventTransactionAdded = "transaction.added"

// TransactionAddedMessage announces a transaction that was persisted to the
// ledger. Amount is the two-decimal string written to the ledger file.
type TransactionAddedMessage struct {
	Date      string    `json:"date"`
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	Amount    string    `json:"amount"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransactionAddedMessage builds the message for tx.
func NewTransactionAddedMessage(tx core.Transaction) *TransactionAddedMessage {
	rec := tx.ToRecord()
	return &TransactionAddedMessage{
		Date:      rec.Date,
		Type:      rec.Type,
		Category:  rec.Category,
		Amount:    rec.Amount,
		Note:      rec.Note,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionAddedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Transaction parses the message back into a validated transaction.
func (m *TransactionAddedMessage) Transaction() (core.Transaction, error) {
	return core.ParseRecord(core.Record{
		Date:     m.Date,
		Type:     m.Type,
		Category: m.Category,
		Amount:   m.Amount,
		Note:     m.Note,
	})
}

// TransactionAddedMessageFromJSON creates a message from JSON bytes
func TransactionAddedMessageFromJSON(data []byte) (*TransactionAddedMessage, error) {
	var msg TransactionAddedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
