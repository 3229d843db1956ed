package core

import "math"

const (
	MsgPageInvalid  = "Page must be a positive integer"
	MsgLimitInvalid = "Limit must be a positive integer"
	MsgStartDate    = "startDate must be a valid ISO 8601 date"
	MsgEndDate      = "endDate must be a valid ISO 8601 date"
	MsgDateRange    = "startDate must not be after endDate"
)

// maxPage keeps the row offset well inside int64 for any allowed limit.
const maxPage = math.MaxInt32

type (
	// PageLimits configures the page size when the caller omits it and the
	// largest page size served.
	PageLimits struct {
		Default int
		Max     int
	}

	// ListQuery is the caller's view of a list request. Nil Page and Limit
	// mean "use the default".
	ListQuery struct {
		Category  string
		StartDate *Date
		EndDate   *Date
		Page      *int
		Limit     *int
	}

	// ListFilter is a resolved, owner scoped list request as seen by a
	// store.
	ListFilter struct {
		UserID    string
		Category  string
		StartDate *Date
		EndDate   *Date
		Page      int
		Limit     int
	}

	// Pagination describes where a page sits in the full result.
	Pagination struct {
		Page       int   `json:"page"`
		Limit      int   `json:"limit"`
		Total      int64 `json:"total"`
		TotalPages int64 `json:"totalPages"`
	}

	// ExpensePage is one page of a list result.
	ExpensePage struct {
		Expenses   []Expense  `json:"expenses"`
		Pagination Pagination `json:"pagination"`
	}
)

// DefaultPageLimits is used when no configuration overrides it.
var DefaultPageLimits = PageLimits{Default: 10, Max: 100}

func (l PageLimits) normalized() PageLimits {
	if l.Max <= 0 {
		l.Max = DefaultPageLimits.Max
	}
	if l.Default <= 0 {
		l.Default = DefaultPageLimits.Default
	}
	if l.Default > l.Max {
		l.Default = l.Max
	}
	return l
}

// Resolve validates the query and scopes it to userID. Limits above the
// configured maximum are clamped, not rejected.
func (q ListQuery) Resolve(userID string, limits PageLimits) (ListFilter, error) {
	limits = limits.normalized()
	f := ListFilter{
		UserID:    userID,
		Category:  q.Category,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Page:      1,
		Limit:     limits.Default,
	}

	ve := &ValidationError{}
	if q.Page != nil {
		if *q.Page <= 0 || *q.Page > maxPage {
			ve.Add("page", MsgPageInvalid)
		} else {
			f.Page = *q.Page
		}
	}
	if q.Limit != nil {
		switch {
		case *q.Limit <= 0:
			ve.Add("limit", MsgLimitInvalid)
		case *q.Limit > limits.Max:
			f.Limit = limits.Max
		default:
			f.Limit = *q.Limit
		}
	}
	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(q.EndDate.Time) {
		ve.Add("startDate", MsgDateRange)
	}
	if err := ve.Err(); err != nil {
		return ListFilter{}, err
	}
	return f, nil
}

// Offset is the number of rows skipped before the page starts.
func (f ListFilter) Offset() int64 {
	return int64(f.Page-1) * int64(f.Limit)
}

// Matches reports whether e satisfies the filter, ownership included.
func (f ListFilter) Matches(e Expense) bool {
	if e.UserID != f.UserID {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.StartDate != nil && e.Date.Before(f.StartDate.Time) {
		return false
	}
	if f.EndDate != nil && e.Date.After(f.EndDate.Time) {
		return false
	}
	return true
}

// NewPagination computes page metadata. TotalPages is ceil(total/limit)
// and zero when nothing matched.
func NewPagination(page, limit int, total int64) Pagination {
	p := Pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 && total > 0 {
		p.TotalPages = (total + int64(limit) - 1) / int64(limit)
	}
	return p
}

// NewExpensePage wraps a page of rows with its pagination metadata.
func NewExpensePage(items []Expense, total int64, f ListFilter) ExpensePage {
	if items == nil {
		items = []Expense{}
	}
	return ExpensePage{
		Expenses:   items,
		Pagination: NewPagination(f.Page, f.Limit, total),
	}
}

// LessRecent orders expenses newest first: date, then creation time, then
// id, all descending.
func LessRecent(a, b Expense) bool {
	if !a.Date.Equal(b.Date.Time) {
		return a.Date.After(b.Date.Time)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
