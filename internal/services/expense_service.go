package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/core"

	"github.com/google/uuid"
)

// ExpenseService is the expense query engine: it validates input, scopes
// every operation to the caller and publishes change events after the
// store has committed.
type ExpenseService struct {
	store  ExpenseStore
	events EventPublisher
	limits core.PageLimits
	now    func() time.Time
	newID  func() string
}

// ExpenseOption customises an ExpenseService.
type ExpenseOption func(*ExpenseService)

// WithEvents enables change events.
func WithEvents(p EventPublisher) ExpenseOption {
	return func(s *ExpenseService) { s.events = p }
}

// WithPageLimits overrides the default and maximum page size.
func WithPageLimits(l core.PageLimits) ExpenseOption {
	return func(s *ExpenseService) { s.limits = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ExpenseOption {
	return func(s *ExpenseService) { s.now = now }
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(newID func() string) ExpenseOption {
	return func(s *ExpenseService) { s.newID = newID }
}

func NewExpenseService(store ExpenseStore, opts ...ExpenseOption) *ExpenseService {
	s := &ExpenseService{
		store:  store,
		limits: core.DefaultPageLimits,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp is the current time at the precision every backend keeps.
func (s *ExpenseService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// List returns one page of the caller's expenses, newest first.
func (s *ExpenseService) List(ctx context.Context, userID string, q core.ListQuery) (core.ExpensePage, error) {
	f, err := q.Resolve(userID, s.limits)
	if err != nil {
		return core.ExpensePage{}, err
	}

	items, total, err := s.store.ListExpenses(ctx, f)
	if err != nil {
		return core.ExpensePage{}, fmt.Errorf("list expenses: %w", err)
	}
	return core.NewExpensePage(items, total, f), nil
}

// Summary totals the caller's whole history per category.
func (s *ExpenseService) Summary(ctx context.Context, userID string) (core.Summary, error) {
	summary, err := s.store.SummarizeExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("summarize expenses: %w", err)
	}
	return summary, nil
}

// Create stores a new expense owned by userID.
func (s *ExpenseService) Create(ctx context.Context, userID string, in core.NewExpense) (core.Expense, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}

	now := s.timestamp()
	e := core.Expense{
		ID:        s.newID(),
		UserID:    userID,
		Amount:    in.Amount,
		Category:  in.Category,
		Date:      in.Date,
		Note:      in.Note,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Save first, the event is best effort
	if err := s.store.CreateExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.publish(ctx, amqp.NewExpenseEvent(amqp.EventExpenseCreated, e, now))
	return e, nil
}

// Update applies a partial patch to an expense owned by userID. A missing
// or foreign expense yields core.ErrNotFound.
func (s *ExpenseService) Update(ctx context.Context, id, userID string, patch core.ExpensePatch) (core.Expense, error) {
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		return core.Expense{}, err
	}

	now := s.timestamp()
	e, err := s.store.UpdateExpense(ctx, id, userID, patch, now)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, err)
	}

	s.publish(ctx, amqp.NewExpenseEvent(amqp.EventExpenseUpdated, e, now))
	return e, nil
}

// Delete permanently removes an expense owned by userID.
func (s *ExpenseService) Delete(ctx context.Context, id, userID string) error {
	if err := s.store.DeleteExpense(ctx, id, userID); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}

	s.publish(ctx, amqp.NewExpenseDeletedEvent(id, userID, s.timestamp()))
	return nil
}

func (s *ExpenseService) publish(ctx context.Context, event *amqp.ExpenseEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"event_type", event.Type,
			"expense_id", event.ExpenseID,
			"error", err)
		// Don't fail the request - the change is already committed
	}
}
