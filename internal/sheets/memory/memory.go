package memory

import (
	"context"
	"fmt"
	"sync"

	"expenses/internal/core"
	"expenses/internal/sheets"
)

var _ sheets.ExpenseMirror = (*Store)(nil)

// Store is an in-memory mirror, used when no spreadsheet is configured and
// in tests.
type Store struct {
	mu    sync.Mutex
	rows  [][]string
	index map[string]int
}

func New() *Store {
	return &Store{index: map[string]int{}}
}

// Upsert stores the expense and returns a synthetic row reference.
func (s *Store) Upsert(_ context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		return "", fmt.Errorf("mirror expense without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := sheets.Row(e)
	if i, ok := s.index[e.ID]; ok {
		s.rows[i] = row
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, row)
	s.index[e.ID] = len(s.rows) - 1
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Delete blanks the expense row, leaving its position in place like a
// cleared sheet row.
func (s *Store) Delete(_ context.Context, expenseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[expenseID]
	if !ok {
		return nil
	}
	s.rows[i] = nil
	delete(s.index, expenseID)
	return nil
}

// Get returns the mirrored row of an expense.
func (s *Store) Get(expenseID string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[expenseID]
	if !ok {
		return nil, false
	}
	return append([]string(nil), s.rows[i]...), true
}

// Len returns the number of rows ever written, cleared ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
