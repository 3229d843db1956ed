package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"expenses/internal/core"
)

func fieldsOf(err error) []string {
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		out[i] = f.Field
	}
	return out
}

func decodeExpenseBody(t *testing.T, raw string) expenseBody {
	t.Helper()
	var body expenseBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return body
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"object", `{"amount":1}`, false},
		{"object with whitespace", "  \n{}\n", false},
		{"empty", ``, true},
		{"array", `[1,2]`, true},
		{"string", `"hi"`, true},
		{"truncated", `{"amount":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var body expenseBody
			err := decodeJSON(httptest.NewRecorder(), r, &body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && strings.Join(fieldsOf(err), ",") != "body" {
				t.Errorf("fields = %v, want [body]", fieldsOf(err))
			}
		})
	}
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	big := `{"note":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var body expenseBody
	if err := decodeJSON(httptest.NewRecorder(), r, &body); !errors.Is(err, errBodyTooLarge) {
		t.Fatalf("err = %v, want errBodyTooLarge", err)
	}
}

func TestParseNewExpense(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantFields string
		wantCents  int64
		wantNote   *string
	}{
		{"number amount", `{"amount":42.5,"category":" Food ","date":"2024-01-15"}`, "", 4250, nil},
		{"string amount", `{"amount":"19.99","category":"Food","date":"2024-01-15"}`, "", 1999, nil},
		{"with note", `{"amount":1,"category":"Food","date":"2024-01-15","note":"lunch"}`, "", 100, strPtr("lunch")},
		{"null note", `{"amount":1,"category":"Food","date":"2024-01-15","note":null}`, "", 100, nil},
		{"missing everything", `{}`, "amount,category,date", 0, nil},
		{"zero amount", `{"amount":0,"category":"Food","date":"2024-01-15"}`, "amount", 0, nil},
		{"rounds half up", `{"amount":1.005,"category":"Food","date":"2024-01-15"}`, "", 101, nil},
		{"category number", `{"amount":1,"category":7,"date":"2024-01-15"}`, "category", 0, nil},
		{"impossible date", `{"amount":1,"category":"Food","date":"2024-02-30"}`, "date", 0, nil},
		{"bad note and blank category", `{"amount":1,"category":"  ","date":"2024-01-15","note":true}`, "note,category", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := parseNewExpense(decodeExpenseBody(t, tt.body))
			if got := strings.Join(fieldsOf(err), ","); got != tt.wantFields {
				t.Fatalf("fields = %q, want %q (err %v)", got, tt.wantFields, err)
			}
			if err != nil {
				return
			}
			if in.Amount.Cents != tt.wantCents {
				t.Errorf("cents = %d, want %d", in.Amount.Cents, tt.wantCents)
			}
			if (in.Note == nil) != (tt.wantNote == nil) || (in.Note != nil && *in.Note != *tt.wantNote) {
				t.Errorf("note = %v, want %v", in.Note, tt.wantNote)
			}
		})
	}
}

func TestParseExpensePatch_NoteStates(t *testing.T) {
	p, err := parseExpensePatch(decodeExpenseBody(t, `{"amount":5}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.Note.Set {
		t.Error("omitted note should leave the patch note unset")
	}
	if p.Amount == nil || p.Amount.Cents != 500 {
		t.Errorf("amount = %v", p.Amount)
	}

	p, err = parseExpensePatch(decodeExpenseBody(t, `{"note":null}`))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Note.Set || !p.Note.Null {
		t.Errorf("null note = %+v, want set and null", p.Note)
	}

	p, err = parseExpensePatch(decodeExpenseBody(t, `{"note":"dinner"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Note.Set || p.Note.Null || p.Note.Value != "dinner" {
		t.Errorf("note = %+v", p.Note)
	}

	p, err = parseExpensePatch(decodeExpenseBody(t, `{}`))
	if err != nil || !p.IsEmpty() {
		t.Errorf("empty body: patch %+v, err %v", p, err)
	}
}

func TestParseExpensePatch_Invalid(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"amount":null}`, "amount"},
		{`{"category":null}`, "category"},
		{`{"category":""}`, "category"},
		{`{"date":null}`, "date"},
		{`{"date":"yesterday","amount":-3}`, "amount,date"},
		{`{"note":42}`, "note"},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			_, err := parseExpensePatch(decodeExpenseBody(t, tt.body))
			if got := strings.Join(fieldsOf(err), ","); got != tt.want {
				t.Errorf("fields = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseListQuery(t *testing.T) {
	q, err := parseListQuery(url.Values{
		"category":  {" Food "},
		"page":      {"2"},
		"limit":     {"5"},
		"startDate": {"2024-01-01"},
		"endDate":   {"2024-01-31"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if q.Category != "Food" || *q.Page != 2 || *q.Limit != 5 {
		t.Errorf("query = %+v", q)
	}
	if q.StartDate.String() != "2024-01-01" || q.EndDate.String() != "2024-01-31" {
		t.Errorf("dates = %v..%v", q.StartDate, q.EndDate)
	}

	q, err = parseListQuery(url.Values{"page": {""}, "category": {""}})
	if err != nil {
		t.Fatal(err)
	}
	if q.Page != nil || q.Limit != nil || q.Category != "" {
		t.Errorf("empty params should be omitted: %+v", q)
	}

	_, err = parseListQuery(url.Values{
		"page": {"x"}, "limit": {"1.5"}, "startDate": {"jan"}, "endDate": {"2024-13-01"},
	})
	if got := strings.Join(fieldsOf(err), ","); got != "page,limit,startDate,endDate" {
		t.Errorf("fields = %q", got)
	}
}

func TestParseExpenseID(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"0b7c9b4e-4a8e-4c57-9c3a-2f0a1d5e6b7f", "0b7c9b4e-4a8e-4c57-9c3a-2f0a1d5e6b7f", false},
		{"0B7C9B4E-4A8E-4C57-9C3A-2F0A1D5E6B7F", "0b7c9b4e-4a8e-4c57-9c3a-2f0a1d5e6b7f", false},
		{"42", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodDelete, "/expenses/x", nil)
		r.SetPathValue("id", tt.raw)
		got, err := parseExpenseID(r)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseExpenseID(%q) err = %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseExpenseID(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseRegistrationAndCredentials(t *testing.T) {
	var rb registerBody
	_ = json.Unmarshal([]byte(`{"email":"a@b.co","password":"secret1","name":"Ada"}`), &rb)
	reg, err := parseRegistration(rb)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Email != "a@b.co" || reg.Name == nil || *reg.Name != "Ada" {
		t.Errorf("registration = %+v", reg)
	}

	rb = registerBody{}
	_ = json.Unmarshal([]byte(`{"email":1,"name":false}`), &rb)
	_, err = parseRegistration(rb)
	if got := strings.Join(fieldsOf(err), ","); got != "email,password,name" {
		t.Errorf("fields = %q", got)
	}

	var lb loginBody
	_ = json.Unmarshal([]byte(`{"email":"a@b.co"}`), &lb)
	_, err = parseCredentials(lb)
	if got := strings.Join(fieldsOf(err), ","); got != "password" {
		t.Errorf("fields = %q", got)
	}
}

func strPtr(s string) *string { return &s }
