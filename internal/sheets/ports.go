package sheets

import (
	"context"

	"expenses/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseMirror keeps a copy of every expense in an external sheet,
	// one row per expense keyed by its id.
	ExpenseMirror interface {
		// Upsert writes e, appending a row when its id is not mirrored yet.
		Upsert(ctx context.Context, e core.Expense) (rowRef string, err error)
		// Delete clears the row of the given expense. Deleting an id that is
		// not mirrored is not an error.
		Delete(ctx context.Context, expenseID string) error
	}
)

// Header is the first row of the mirror sheet.
var Header = []string{"id", "userId", "date", "category", "amount", "note"}

// Row renders e in column order of Header.
func Row(e core.Expense) []string {
	note := ""
	if e.Note != nil {
		note = *e.Note
	}
	return []string{e.ID, e.UserID, e.Date.String(), e.Category, e.Amount.String(), note}
}
