package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"expenses/internal/core"
)

// EventType names an expense change.
type EventType string

const (
	EventExpenseCreated EventType = "expense.created"
	EventExpenseUpdated EventType = "expense.updated"
	EventExpenseDeleted EventType = "expense.deleted"
)

// ExpenseEvent announces a committed change to an expense. Created and
// updated events carry the full record; deleted events only the ids.
type ExpenseEvent struct {
	Type      EventType     `json:"type"`
	ExpenseID string        `json:"expenseId"`
	UserID    string        `json:"userId"`
	Expense   *core.Expense `json:"expense,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewExpenseEvent creates a created or updated event for e.
func NewExpenseEvent(t EventType, e core.Expense, now time.Time) *ExpenseEvent {
	return &ExpenseEvent{
		Type:      t,
		ExpenseID: e.ID,
		UserID:    e.UserID,
		Expense:   &e,
		Timestamp: now,
	}
}

// NewExpenseDeletedEvent creates a deleted event.
func NewExpenseDeletedEvent(id, userID string, now time.Time) *ExpenseEvent {
	return &ExpenseEvent{
		Type:      EventExpenseDeleted,
		ExpenseID: id,
		UserID:    userID,
		Timestamp: now,
	}
}

// Validate checks that the event can be acted upon.
func (m *ExpenseEvent) Validate() error {
	if m.ExpenseID == "" || m.UserID == "" {
		return errors.New("event without expense or user id")
	}
	switch m.Type {
	case EventExpenseCreated, EventExpenseUpdated:
		if m.Expense == nil {
			return fmt.Errorf("%s event without expense", m.Type)
		}
	case EventExpenseDeleted:
	default:
		return fmt.Errorf("unknown event type %q", m.Type)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseEventFromJSON decodes and validates an event.
func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
