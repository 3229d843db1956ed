package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"expenses/internal/core"

	goption "google.golang.org/api/option"
)

// fakeSheet serves the subset of the Sheets values API used by Client.
type fakeSheet struct {
	mu           sync.Mutex
	rows         [][]string
	inputOptions []string
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const prefix = "/v4/spreadsheets/sheet-id/values/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rng := strings.TrimPrefix(r.URL.Path, prefix)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && rng == "Expenses!A:A":
		values := make([][]string, 0, len(f.rows))
		for _, row := range f.rows {
			if len(row) == 0 || row[0] == "" {
				values = append(values, []string{})
				continue
			}
			values = append(values, []string{row[0]})
		}
		for len(values) > 0 && len(values[len(values)-1]) == 0 {
			values = values[:len(values)-1]
		}
		writeJSON(w, map[string]any{"range": rng, "values": values})
	case r.Method == http.MethodPut:
		f.inputOptions = append(f.inputOptions, r.URL.Query().Get("valueInputOption"))
		row, ok := parseRow(rng)
		if !ok {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Values) != 1 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		cells := make([]string, len(body.Values[0]))
		for i, v := range body.Values[0] {
			cells[i] = fmt.Sprint(v)
		}
		for len(f.rows) < row {
			f.rows = append(f.rows, nil)
		}
		f.rows[row-1] = cells
		writeJSON(w, map[string]any{"updatedRange": rng})
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		row, ok := parseRow(strings.TrimSuffix(rng, ":clear"))
		if !ok || row > len(f.rows) {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		f.rows[row-1] = nil
		writeJSON(w, map[string]any{"clearedRange": rng})
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func (f *fakeSheet) row(i int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.rows) {
		return nil
	}
	return f.rows[i]
}

func parseRow(rng string) (int, bool) {
	var from, to int
	if _, err := fmt.Sscanf(rng, "Expenses!A%d:F%d", &from, &to); err != nil || from != to || from < 1 {
		return 0, false
	}
	return from, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeSheet) {
	t.Helper()
	fake := &fakeSheet{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-id"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, fake
}

func testExpense(id string) core.Expense {
	return core.Expense{
		ID:       id,
		UserID:   "user-1",
		Amount:   core.Money{Cents: 4250},
		Category: "Food",
		Date:     core.NewDate(2024, 1, 15),
	}
}

func TestClient_UpsertWritesHeaderThenRows(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	ref, err := c.Upsert(ctx, testExpense("e1"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if ref != "Expenses!A2:F2" {
		t.Errorf("ref = %q, want Expenses!A2:F2", ref)
	}
	if got := fake.row(0); strings.Join(got, ",") != "id,userId,date,category,amount,note" {
		t.Errorf("header = %v", got)
	}
	if got := fake.row(1); strings.Join(got, ",") != "e1,user-1,2024-01-15,Food,42.50," {
		t.Errorf("row = %v", got)
	}

	ref, err = c.Upsert(ctx, testExpense("e2"))
	if err != nil {
		t.Fatalf("Upsert second: %v", err)
	}
	if ref != "Expenses!A3:F3" {
		t.Errorf("second ref = %q, want Expenses!A3:F3", ref)
	}
}

func TestClient_UpsertStoresTextVerbatim(t *testing.T) {
	c, fake := newTestClient(t)

	e := testExpense("e1")
	e.Category = `=IMPORTDATA("https://example.com/x")`
	note := "+SUM(A:A)"
	e.Note = &note
	if _, err := c.Upsert(context.Background(), e); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	fake.mu.Lock()
	opts := append([]string(nil), fake.inputOptions...)
	fake.mu.Unlock()
	if len(opts) == 0 {
		t.Fatal("no rows written")
	}
	for _, opt := range opts {
		if opt != "RAW" {
			t.Errorf("valueInputOption = %q, want RAW", opt)
		}
	}
	got := fake.row(1)
	if len(got) != 6 || got[3] != e.Category || got[5] != note {
		t.Errorf("row = %v", got)
	}
}

func TestClient_UpsertRewritesExistingRow(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Upsert(ctx, testExpense("e1")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := c.Upsert(ctx, testExpense("e2")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	updated := testExpense("e1")
	note := "team lunch"
	updated.Note = &note
	updated.Amount = core.Money{Cents: 1000}
	ref, err := c.Upsert(ctx, updated)
	if err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	if ref != "Expenses!A2:F2" {
		t.Errorf("ref = %q, want Expenses!A2:F2", ref)
	}
	if got := fake.row(1); strings.Join(got, ",") != "e1,user-1,2024-01-15,Food,10.00,team lunch" {
		t.Errorf("row = %v", got)
	}
	if got := fake.row(2); len(got) == 0 || got[0] != "e2" {
		t.Errorf("other row changed: %v", got)
	}
}

func TestClient_DeleteClearsRow(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2"} {
		if _, err := c.Upsert(ctx, testExpense(id)); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}
	if err := c.Delete(ctx, "e1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := fake.row(1); len(got) != 0 {
		t.Errorf("row not cleared: %v", got)
	}
	if got := fake.row(2); len(got) == 0 || got[0] != "e2" {
		t.Errorf("unrelated row touched: %v", got)
	}

	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("deleting an unmirrored id should succeed, got %v", err)
	}
}

func TestClient_UpsertWithoutID(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.Upsert(context.Background(), core.Expense{}); err == nil {
		t.Fatal("expected error for expense without id")
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if _, err := c.Upsert(context.Background(), testExpense("e1")); err == nil {
		t.Error("expected error when service is nil")
	}
	if err := c.Delete(context.Background(), "e1"); err == nil {
		t.Error("expected error when service is nil")
	}
}

func TestFindRow(t *testing.T) {
	ids := []string{"id", "a", "", "b"}
	tests := []struct {
		id   string
		want int
	}{
		{"a", 2},
		{"b", 4},
		{"id", 0},
		{"", 0},
		{"c", 0},
	}
	for _, tt := range tests {
		if got := findRow(ids, tt.id); got != tt.want {
			t.Errorf("findRow(%q) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "id"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	ctx := context.Background()

	got, err := loadCredentials(ctx, Config{CredentialsJSON: ` {"type":"service_account"} `, CredentialsFile: "/nope"})
	if err != nil || string(got) != `{"type":"service_account"}` {
		t.Fatalf("inline credentials: %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = loadCredentials(ctx, Config{CredentialsFile: path})
	if err != nil || string(got) != `{"from":"file"}` {
		t.Fatalf("file credentials: %q, %v", got, err)
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)
	if _, err := loadCredentials(ctx, Config{}); err != nil {
		t.Fatalf("application default path: %v", err)
	}

	if _, err := loadCredentials(ctx, Config{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
