package services

import (
	"context"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/core"
)

// Ports for the stores and side channels the services depend on.
type (
	// ExpenseStore persists expenses. Every method scopes by owner inside
	// the query itself.
	ExpenseStore interface {
		CreateExpense(ctx context.Context, e core.Expense) error
		ListExpenses(ctx context.Context, f core.ListFilter) ([]core.Expense, int64, error)
		SummarizeExpenses(ctx context.Context, userID string) (core.Summary, error)
		UpdateExpense(ctx context.Context, id, userID string, patch core.ExpensePatch, now time.Time) (core.Expense, error)
		DeleteExpense(ctx context.Context, id, userID string) error
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUserByID(ctx context.Context, id string) (core.User, error)
	}

	// EventPublisher announces committed expense changes.
	EventPublisher interface {
		Publish(ctx context.Context, event *amqp.ExpenseEvent) error
	}

	PasswordHasher interface {
		Hash(password string) (string, error)
		Compare(hash, password string) error
	}

	TokenIssuer interface {
		Issue(userID string) (string, error)
	}
)
