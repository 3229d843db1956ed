package worker

import (
	"context"
	"fmt"
	"log/slog"

	"expenses/internal/amqp"
	"expenses/internal/sheets"
)

// EventSource delivers expense events to a handler until ctx is done.
type EventSource interface {
	Consume(ctx context.Context, handle amqp.Handler) error
}

// SyncWorker mirrors expense changes into a spreadsheet.
type SyncWorker struct {
	mirror sheets.ExpenseMirror
}

func NewSyncWorker(mirror sheets.ExpenseMirror) *SyncWorker {
	return &SyncWorker{mirror: mirror}
}

// Run consumes events from src until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context, src EventSource) error {
	slog.InfoContext(ctx, "Sync worker started")
	err := src.Consume(ctx, w.HandleEvent)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("consume expense events: %w", err)
	}
	slog.InfoContext(ctx, "Sync worker stopped")
	return nil
}

// HandleEvent applies one expense event to the mirror. A returned error
// asks the source to redeliver the event.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.ExpenseEvent) error {
	if err := ev.Validate(); err != nil {
		slog.WarnContext(ctx, "Dropping invalid expense event", "error", err)
		return nil
	}

	slog.InfoContext(ctx, "Processing expense event",
		"event_type", ev.Type,
		"expense_id", ev.ExpenseID,
		"user_id", ev.UserID)

	switch ev.Type {
	case amqp.EventExpenseCreated, amqp.EventExpenseUpdated:
		ref, err := w.mirror.Upsert(ctx, *ev.Expense)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to mirror expense",
				"expense_id", ev.ExpenseID,
				"error", err)
			return fmt.Errorf("mirror expense %s: %w", ev.ExpenseID, err)
		}
		slog.InfoContext(ctx, "Successfully mirrored expense",
			"expense_id", ev.ExpenseID,
			"sheet_row", ref,
			"amount_cents", ev.Expense.Amount.Cents)
	case amqp.EventExpenseDeleted:
		if err := w.mirror.Delete(ctx, ev.ExpenseID); err != nil {
			slog.ErrorContext(ctx, "Failed to clear mirrored expense",
				"expense_id", ev.ExpenseID,
				"error", err)
			return fmt.Errorf("clear expense %s: %w", ev.ExpenseID, err)
		}
		slog.InfoContext(ctx, "Successfully cleared mirrored expense",
			"expense_id", ev.ExpenseID)
	}
	return nil
}
