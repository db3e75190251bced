// Package worker consumes ledger events published by the server.
package worker

import (
	"context"
	"fmt"

	"btracker/internal/amqp"
	"btracker/internal/core"
	applog "btracker/internal/log"
)

// Appender stores one transaction.
type Appender interface {
	Append(ctx context.Context, tx core.Transaction) error
}

// MirrorWorker copies every announced transaction into a secondary store,
// typically the SQLite repository, so the ledger can be queried with SQL.
type MirrorWorker struct {
	target Appender
	logger *applog.Logger
}

func NewMirrorWorker(target Appender, logger *applog.Logger) *MirrorWorker {
	if logger == nil {
		logger = applog.Default()
	}
	return &MirrorWorker{
		target: target,
		logger: logger.WithComponent(applog.ComponentAMQP),
	}
}

// HandleTransactionAdded processes a single transaction.added message.
// Messages that do not describe a valid transaction are logged and
// acknowledged, since redelivery cannot fix them.
func (w *MirrorWorker) HandleTransactionAdded(ctx context.Context, msg *amqp.TransactionAddedMessage) error {
	tx, err := msg.Transaction()
	if err != nil {
		w.logger.WarnContext(ctx, "Discarding invalid transaction event",
			applog.FieldError, err,
			applog.FieldDate, msg.Date,
			applog.FieldCategory, msg.Category)
		return nil
	}

	if err := w.target.Append(ctx, tx); err != nil {
		return fmt.Errorf("mirror transaction: %w", err)
	}

	w.logger.InfoContext(ctx, "Mirrored transaction",
		applog.NewFields().
			WithOperation(applog.OpAppend).
			WithTransaction(msg.Date, msg.Type, msg.Category, msg.Amount).
			ToSlice()...)
	return nil
}
