// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Body fields are decoded as raw JSON first so that a wrongly typed field
// becomes a field level validation message instead of a decode failure.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"expenses/internal/core"
	"expenses/internal/services"

	"github.com/google/uuid"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 1 << 20

const (
	MsgInvalidExpenseID = "Invalid expense ID"
	MsgInvalidJSON      = "Request body must be a valid JSON object"
)

var errBodyTooLarge = errors.New("request body too large")

type (
	// expenseBody is the wire form of create and update requests. Unknown
	// fields, userId included, are ignored.
	expenseBody struct {
		Amount   json.RawMessage `json:"amount"`
		Category json.RawMessage `json:"category"`
		Date     json.RawMessage `json:"date"`
		Note     json.RawMessage `json:"note"`
	}

	registerBody struct {
		Email    json.RawMessage `json:"email"`
		Password json.RawMessage `json:"password"`
		Name     json.RawMessage `json:"name"`
	}

	loginBody struct {
		Email    json.RawMessage `json:"email"`
		Password json.RawMessage `json:"password"`
	}
)

// decodeJSON reads one JSON object from the size limited body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return core.NewValidationError("body", MsgInvalidJSON)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return core.NewValidationError("body", MsgInvalidJSON)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return core.NewValidationError("body", MsgInvalidJSON)
	}
	return nil
}

// absent reports whether a raw field was omitted or explicitly null.
func absent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isNull(raw json.RawMessage) bool {
	return len(raw) > 0 && bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// rawString decodes a JSON string field.
func rawString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func rawDate(raw json.RawMessage) (core.Date, bool) {
	s, ok := rawString(raw)
	if !ok {
		return core.Date{}, false
	}
	d, err := core.ParseDate(s)
	return d, err == nil
}

// mergeNew appends the field errors of err whose field has not been
// reported yet.
func mergeNew(ve *core.ValidationError, err error) {
	var other *core.ValidationError
	if !errors.As(err, &other) {
		return
	}
	seen := map[string]bool{}
	for _, f := range ve.Fields {
		seen[f.Field] = true
	}
	for _, f := range other.Fields {
		if !seen[f.Field] {
			ve.Add(f.Field, f.Message)
		}
	}
}

// parseNewExpense converts and validates a create body, reporting every
// bad field.
func parseNewExpense(body expenseBody) (core.NewExpense, error) {
	var in core.NewExpense
	ve := &core.ValidationError{}

	if absent(body.Amount) {
		ve.Add("amount", core.MsgAmountInvalid)
	} else if m, err := core.ParseMoneyJSON(body.Amount); err != nil {
		ve.Add("amount", core.MsgAmountInvalid)
	} else {
		in.Amount = m
	}

	if absent(body.Category) {
		ve.Add("category", core.MsgCategoryMissing)
	} else if s, ok := rawString(body.Category); !ok {
		ve.Add("category", core.MsgCategoryMissing)
	} else {
		in.Category = s
	}

	if absent(body.Date) {
		ve.Add("date", core.MsgDateInvalid)
	} else if d, ok := rawDate(body.Date); !ok {
		ve.Add("date", core.MsgDateInvalid)
	} else {
		in.Date = d
	}

	if !absent(body.Note) {
		if s, ok := rawString(body.Note); ok {
			in.Note = &s
		} else {
			ve.Add("note", core.MsgNoteInvalid)
		}
	}

	in.Normalize()
	mergeNew(ve, in.Validate())
	if err := ve.Err(); err != nil {
		return core.NewExpense{}, err
	}
	return in, nil
}

// parseExpensePatch converts an update body. Omitted fields stay nil; a
// null note clears the note while null for any other field is invalid.
func parseExpensePatch(body expenseBody) (core.ExpensePatch, error) {
	var p core.ExpensePatch
	ve := &core.ValidationError{}

	if len(body.Amount) > 0 {
		if m, err := core.ParseMoneyJSON(body.Amount); err != nil {
			ve.Add("amount", core.MsgAmountInvalid)
		} else {
			p.Amount = &m
		}
	}

	if len(body.Category) > 0 {
		if s, ok := rawString(body.Category); ok {
			p.Category = &s
		} else {
			ve.Add("category", core.MsgCategoryEmpty)
		}
	}

	if len(body.Date) > 0 {
		if d, ok := rawDate(body.Date); ok {
			p.Date = &d
		} else {
			ve.Add("date", core.MsgDateInvalid)
		}
	}

	switch {
	case len(body.Note) == 0:
	case isNull(body.Note):
		p.Note = core.OptionalString{Set: true, Null: true}
	default:
		if s, ok := rawString(body.Note); ok {
			p.Note = core.OptionalString{Set: true, Value: s}
		} else {
			ve.Add("note", core.MsgNoteInvalid)
		}
	}

	p.Normalize()
	mergeNew(ve, p.Validate())
	if err := ve.Err(); err != nil {
		return core.ExpensePatch{}, err
	}
	return p, nil
}

func parseRegistration(body registerBody) (services.Registration, error) {
	var in services.Registration
	ve := &core.ValidationError{}

	if s, ok := rawString(body.Email); ok {
		in.Email = s
	} else {
		ve.Add("email", services.MsgEmailInvalid)
	}
	if s, ok := rawString(body.Password); ok {
		in.Password = s
	} else {
		ve.Add("password", services.MsgPasswordShort)
	}
	if !absent(body.Name) {
		if s, ok := rawString(body.Name); ok {
			in.Name = &s
		} else {
			ve.Add("name", services.MsgNameEmpty)
		}
	}
	return in, ve.Err()
}

func parseCredentials(body loginBody) (services.Credentials, error) {
	var in services.Credentials
	ve := &core.ValidationError{}

	if s, ok := rawString(body.Email); ok {
		in.Email = s
	} else {
		ve.Add("email", services.MsgEmailInvalid)
	}
	if s, ok := rawString(body.Password); ok {
		in.Password = s
	} else {
		ve.Add("password", services.MsgPasswordRequired)
	}
	return in, ve.Err()
}

// parseListQuery reads list filters from the query string. Empty values
// count as omitted.
func parseListQuery(query url.Values) (core.ListQuery, error) {
	q := core.ListQuery{Category: strings.TrimSpace(query.Get("category"))}
	ve := &core.ValidationError{}

	if v := strings.TrimSpace(query.Get("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Page = &n
		} else {
			ve.Add("page", core.MsgPageInvalid)
		}
	}
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = &n
		} else {
			ve.Add("limit", core.MsgLimitInvalid)
		}
	}
	if v := strings.TrimSpace(query.Get("startDate")); v != "" {
		if d, err := core.ParseDate(v); err == nil {
			q.StartDate = &d
		} else {
			ve.Add("startDate", core.MsgStartDate)
		}
	}
	if v := strings.TrimSpace(query.Get("endDate")); v != "" {
		if d, err := core.ParseDate(v); err == nil {
			q.EndDate = &d
		} else {
			ve.Add("endDate", core.MsgEndDate)
		}
	}
	return q, ve.Err()
}

// parseExpenseID validates the {id} path segment and returns it in
// canonical form.
func parseExpenseID(r *http.Request) (string, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return "", core.NewValidationError("id", MsgInvalidExpenseID)
	}
	return id.String(), nil
}
