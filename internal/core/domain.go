package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Field validation messages. They are part of the HTTP contract.
const (
	MsgAmountInvalid   = "Amount must be a positive number"
	MsgCategoryMissing = "Category is required"
	MsgCategoryEmpty   = "Category cannot be empty if provided"
	MsgDateInvalid     = "Date must be a valid ISO 8601 date"
	MsgNoteInvalid     = "Note must be a string or null"
	MsgCategoryTooLong = "Category must be at most 100 characters"
	MsgNoteTooLong     = "Note must be at most 500 characters"
)

// Length caps count characters, not bytes, to match VARCHAR on mysql.
const (
	MaxCategoryLength = 100
	MaxNoteLength     = 500
)

type (
	// Expense is a single spending record owned by exactly one user.
	Expense struct {
		ID        string    `json:"id"`
		UserID    string    `json:"userId"`
		Amount    Money     `json:"amount"`
		Category  string    `json:"category"`
		Date      Date      `json:"date"`
		Note      *string   `json:"note"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// NewExpense holds the caller supplied fields of an expense to create.
	// The owner is never part of it.
	NewExpense struct {
		Amount   Money
		Category string
		Date     Date
		Note     *string
	}

	// ExpensePatch is a partial update. Nil pointers leave the stored value
	// untouched; Note distinguishes omitted from explicit null.
	ExpensePatch struct {
		Amount   *Money
		Category *string
		Date     *Date
		Note     OptionalString
	}

	// OptionalString is a tri-state string: absent, null or a value.
	OptionalString struct {
		Set   bool
		Null  bool
		Value string
	}

	// User is an account able to own expenses.
	User struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		Name         *string   `json:"name"`
		CreatedAt    time.Time `json:"createdAt"`
	}
)

// Ptr returns the value as a pointer, nil when null or absent.
func (o OptionalString) Ptr() *string {
	if !o.Set || o.Null {
		return nil
	}
	v := o.Value
	return &v
}

// NormalizeNote trims a note and turns an empty one into null.
func NormalizeNote(note *string) *string {
	if note == nil {
		return nil
	}
	v := strings.TrimSpace(*note)
	if v == "" {
		return nil
	}
	return &v
}

// Normalize trims text fields in place.
func (n *NewExpense) Normalize() {
	n.Category = strings.TrimSpace(n.Category)
	n.Note = NormalizeNote(n.Note)
}

// Validate reports every invalid field at once.
func (n NewExpense) Validate() error {
	ve := &ValidationError{}
	if n.Amount.Validate() != nil {
		ve.Add("amount", MsgAmountInvalid)
	}
	category := strings.TrimSpace(n.Category)
	switch {
	case category == "":
		ve.Add("category", MsgCategoryMissing)
	case utf8.RuneCountInString(category) > MaxCategoryLength:
		ve.Add("category", MsgCategoryTooLong)
	}
	if n.Date.Validate() != nil {
		ve.Add("date", MsgDateInvalid)
	}
	if n.Note != nil && utf8.RuneCountInString(*n.Note) > MaxNoteLength {
		ve.Add("note", MsgNoteTooLong)
	}
	return ve.Err()
}

// Normalize trims text fields in place. A note that is empty after
// trimming becomes an explicit null.
func (p *ExpensePatch) Normalize() {
	if p.Category != nil {
		c := strings.TrimSpace(*p.Category)
		p.Category = &c
	}
	if p.Note.Set && !p.Note.Null {
		p.Note.Value = strings.TrimSpace(p.Note.Value)
		if p.Note.Value == "" {
			p.Note.Null = true
		}
	}
}

// Validate checks only the fields present in the patch.
func (p ExpensePatch) Validate() error {
	ve := &ValidationError{}
	if p.Amount != nil && p.Amount.Validate() != nil {
		ve.Add("amount", MsgAmountInvalid)
	}
	if p.Category != nil {
		category := strings.TrimSpace(*p.Category)
		switch {
		case category == "":
			ve.Add("category", MsgCategoryEmpty)
		case utf8.RuneCountInString(category) > MaxCategoryLength:
			ve.Add("category", MsgCategoryTooLong)
		}
	}
	if p.Date != nil && p.Date.Validate() != nil {
		ve.Add("date", MsgDateInvalid)
	}
	if p.Note.Set && !p.Note.Null && utf8.RuneCountInString(p.Note.Value) > MaxNoteLength {
		ve.Add("note", MsgNoteTooLong)
	}
	return ve.Err()
}

// IsEmpty reports whether the patch changes nothing.
func (p ExpensePatch) IsEmpty() bool {
	return p.Amount == nil && p.Category == nil && p.Date == nil && !p.Note.Set
}

// Apply returns a copy of e with the patch applied and UpdatedAt set.
func (p ExpensePatch) Apply(e Expense, now time.Time) Expense {
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Note.Set {
		e.Note = p.Note.Ptr()
	}
	e.UpdatedAt = now
	return e
}
