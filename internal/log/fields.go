package log

import (
	"net/http"
	"time"
)

// Attribute keys shared by every component.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldBytes       = "bytes"
	FieldUserAgent   = "user_agent"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldExpenseID   = "expense_id"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
)

const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAuth      = "auth"
	ComponentExpense   = "expense"
	ComponentStorage   = "storage"
	ComponentWorker    = "worker"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
)

const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpSummary  = "summary"
	OpLogin    = "login"
	OpRegister = "register"
	OpShutdown = "shutdown"
)

// Fields is an ordered list of key/value pairs in the form slog expects.
// Order is kept so lines read the same way every time.
type Fields []any

// Add appends one pair.
func (f Fields) Add(key string, value any) Fields {
	return append(f, key, value)
}

// Err appends the error text; a nil error adds nothing.
func (f Fields) Err(err error) Fields {
	if err == nil {
		return f
	}
	return append(f, FieldError, err.Error())
}

// Request appends method and path, plus query and user agent when set.
func (f Fields) Request(r *http.Request) Fields {
	f = append(f, FieldMethod, r.Method, FieldPath, r.URL.Path)
	if r.URL.RawQuery != "" {
		f = append(f, FieldQuery, r.URL.RawQuery)
	}
	if ua := r.UserAgent(); ua != "" {
		f = append(f, FieldUserAgent, ua)
	}
	return f
}

// Response appends the outcome of a served request.
func (f Fields) Response(status int, elapsed time.Duration, bytes int64) Fields {
	return append(f,
		FieldStatusCode, status,
		FieldDuration, elapsed.Milliseconds(),
		FieldBytes, bytes)
}

// Expense appends the identifying fields of an expense. The note is never
// logged.
func (f Fields) Expense(id, userID string, amountCents int64, category string) Fields {
	return append(f,
		FieldExpenseID, id,
		FieldUserID, userID,
		FieldAmountCents, amountCents,
		FieldCategory, category)
}
