package http

import (
	"net/http"

	"expenses/internal/auth"
	"expenses/internal/core"
	"expenses/internal/log"
)

type expenseEnvelope struct {
	Message string        `json:"message"`
	Expense *core.Expense `json:"expense,omitempty"`
}

// callerID returns the authenticated user. Routes using it are wrapped by
// requireAuth, so a missing id is a wiring bug.
func callerID(r *http.Request) (string, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return "", auth.ErrMissingToken
	}
	return id, nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := s.expenses.List(r.Context(), userID, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, page)
}

func (s *Server) handleExpenseSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.expenses.Summary(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if summary == nil {
		summary = core.Summary{}
	}
	writeJSON(w, r, http.StatusOK, summary)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body expenseBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := parseNewExpense(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.expenses.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logExpense(r, log.OpCreate, e)
	writeJSON(w, r, http.StatusCreated, expenseEnvelope{Message: MsgExpenseCreated, Expense: &e})
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := parseExpenseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body expenseBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := parseExpensePatch(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := s.expenses.Update(r.Context(), id, userID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logExpense(r, log.OpUpdate, e)
	writeJSON(w, r, http.StatusOK, expenseEnvelope{Message: MsgExpenseUpdated, Expense: &e})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := parseExpenseID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := s.expenses.Delete(r.Context(), id, userID); err != nil {
		writeError(w, r, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense deleted",
		log.FieldExpenseID, id,
		log.FieldUserID, userID)
	writeJSON(w, r, http.StatusOK, expenseEnvelope{Message: MsgExpenseDeleted})
}

func (s *Server) logExpense(r *http.Request, op string, e core.Expense) {
	log.FromContext(r.Context()).ExpenseChanged(r.Context(), op, e.ID, e.UserID, e.Amount.Cents, e.Category)
}
