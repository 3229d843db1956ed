// Package memory is a process local store for users and expenses. It backs
// the "memory" data backend and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"expenses/internal/core"
)

type Store struct {
	mu       sync.RWMutex
	expenses map[string]core.Expense
	users    map[string]core.User
	emails   map[string]string
}

func New() *Store {
	return &Store{
		expenses: map[string]core.Expense{},
		users:    map[string]core.User{},
		emails:   map[string]string{},
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func cloneExpense(e core.Expense) core.Expense {
	if e.Note != nil {
		n := *e.Note
		e.Note = &n
	}
	return e
}

// CreateExpense stores the expense. Ids must be unique.
func (s *Store) CreateExpense(_ context.Context, e core.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[e.ID]; ok {
		return fmt.Errorf("create expense %s: %w", e.ID, core.ErrConflict)
	}
	s.expenses[e.ID] = cloneExpense(e)
	return nil
}

// ListExpenses filters, orders and pages under one read lock so the total
// matches the page.
func (s *Store) ListExpenses(_ context.Context, f core.ListFilter) ([]core.Expense, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []core.Expense
	for _, e := range s.expenses {
		if f.Matches(e) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return core.LessRecent(matched[i], matched[j]) })

	total := int64(len(matched))
	out := []core.Expense{}
	if offset := f.Offset(); offset < total {
		end := offset + int64(f.Limit)
		if end > total {
			end = total
		}
		for _, e := range matched[offset:end] {
			out = append(out, cloneExpense(e))
		}
	}
	return out, total, nil
}

func (s *Store) SummarizeExpenses(_ context.Context, userID string) (core.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []core.Expense
	for _, e := range s.expenses {
		if e.UserID == userID {
			owned = append(owned, e)
		}
	}
	return core.Summarize(owned), nil
}

func (s *Store) UpdateExpense(_ context.Context, id, userID string, patch core.ExpensePatch, now time.Time) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return core.Expense{}, core.ErrNotFound
	}
	e = patch.Apply(e, now)
	s.expenses[id] = e
	return cloneExpense(e), nil
}

func (s *Store) DeleteExpense(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[u.Email]; ok {
		return fmt.Errorf("create user %s: %w", u.Email, core.ErrConflict)
	}
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("create user %s: %w", u.ID, core.ErrConflict)
	}
	s.users[u.ID] = u
	s.emails[u.Email] = u.ID
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}
