package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"dompet/internal/core"
	"dompet/internal/sheets"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const testClientJSON = `{"installed":{"client_id":"test","client_secret":"test","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Options{})
	if err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_InvalidClientJSON(t *testing.T) {
	_, err := New(context.Background(), Options{
		SpreadsheetID:   "test-id",
		OAuthClientJSON: "invalid-json",
		OAuthTokenJSON:  `{"access_token":"test"}`,
	})
	if err == nil {
		t.Fatal("expected error with invalid JSON")
	}
	if !strings.Contains(err.Error(), "oauth config") {
		t.Errorf("expected oauth config error, got: %v", err)
	}
}

func TestNewSheetsService_MissingCredentials(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{
			name: "no client",
			opts: Options{},
			want: "missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)",
		},
		{
			name: "no token",
			opts: Options{OAuthClientJSON: testClientJSON},
			want: "missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newSheetsService(context.Background(), tt.opts)
			if err == nil || err.Error() != tt.want {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNewSheetsService_MissingTokenFile(t *testing.T) {
	_, err := newSheetsService(context.Background(), Options{
		OAuthClientJSON: testClientJSON,
		OAuthTokenFile:  t.TempDir() + "/absent.json",
	})
	if err == nil || !strings.Contains(err.Error(), "read oauth token") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestJsonUnmarshalIndirection(t *testing.T) {
	var token oauth2.Token
	if err := jsonUnmarshal([]byte(`{"access_token":"test","token_type":"Bearer"}`), &token); err != nil {
		t.Fatalf("jsonUnmarshal failed: %v", err)
	}
	if token.AccessToken != "test" {
		t.Errorf("expected access token 'test', got %s", token.AccessToken)
	}
	if err := jsonUnmarshal([]byte(`{invalid json}`), &token); err == nil {
		t.Fatal("expected error with invalid JSON")
	}
}

func TestIndexIDColumn(t *testing.T) {
	values := [][]any{{"ID"}, {"7"}, {}, {" 12 "}, {"note"}}
	rows, count := indexIDColumn(values)
	if count != 5 {
		t.Fatalf("expected 5 rows, got %d", count)
	}
	if rows[7] != 2 || rows[12] != 4 || len(rows) != 2 {
		t.Fatalf("unexpected index %v", rows)
	}
}

func TestRowValues(t *testing.T) {
	got := rowValues(sheets.Row{
		ID:          3,
		Date:        core.NewDate(2024, 2, 29),
		Category:    "Food",
		Type:        core.Expense,
		Amount:      decimal.RequireFromString("1250.5"),
		Description: "groceries",
	})
	want := []any{"3", "2024-02-29", "Food", core.Expense.Title(), "1250.50", "groceries"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	if err := c.Upsert(context.Background(), sheets.Row{ID: 1}); err == nil {
		t.Fatal("expected error without service")
	}
	if err := c.Remove(context.Background(), 1); err == nil {
		t.Fatal("expected error without service")
	}
}

// fakeSheet serves the subset of the Sheets values API the client uses.
type fakeSheet struct {
	mu   sync.Mutex
	grid map[int][]any
	gets int
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/v4/spreadsheets/sheet-id/values/"
	rng := strings.TrimPrefix(r.URL.Path, prefix)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet:
		f.gets++
		last := 0
		for n := range f.grid {
			if n > last {
				last = n
			}
		}
		values := make([][]any, last)
		for n := 1; n <= last; n++ {
			if row, ok := f.grid[n]; ok && len(row) > 0 {
				values[n-1] = []any{row[0]}
			} else {
				values[n-1] = []any{}
			}
		}
		_ = json.NewEncoder(w).Encode(gsheet.ValueRange{Range: rng, Values: values})
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.grid[rowOf(rng)] = vr.Values[0]
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
		delete(f.grid, rowOf(strings.TrimSuffix(rng, ":clear")))
		_, _ = w.Write([]byte(`{}`))
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusNotFound)
	}
}

func (f *fakeSheet) cell(row, col int) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.grid[row]
	if col >= len(r) {
		return nil
	}
	return r[col]
}

// rowOf extracts the first row number from a range such as "Sheet!A5:F5".
func rowOf(rng string) int {
	i := strings.Index(rng, "!A")
	if i < 0 {
		return 0
	}
	digits := rng[i+2:]
	if j := strings.IndexByte(digits, ':'); j >= 0 {
		digits = digits[:j]
	}
	n, _ := strconv.Atoi(digits)
	return n
}

func newTestClient(t *testing.T, fake *fakeSheet) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return &Client{svc: svc, spreadsheetID: "sheet-id", sheet: "Transactions", cacheValidDuration: time.Minute}
}

func TestClient_UpsertAndRemove(t *testing.T) {
	fake := &fakeSheet{grid: map[int][]any{}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	food := sheets.Row{ID: 10, Date: core.NewDate(2024, 1, 1), Category: "Food", Type: core.Expense, Amount: decimal.NewFromInt(500)}
	salary := sheets.Row{ID: 11, Date: core.NewDate(2024, 1, 2), Category: "Salary", Type: core.Income, Amount: decimal.NewFromInt(1000)}
	for _, r := range []sheets.Row{food, salary} {
		if err := c.Upsert(ctx, r); err != nil {
			t.Fatalf("upsert %d: %v", r.ID, err)
		}
	}
	if fake.cell(1, 0) != "ID" {
		t.Fatalf("expected header row, got %v", fake.cell(1, 0))
	}
	if fake.cell(2, 0) != "10" || fake.cell(3, 0) != "11" {
		t.Fatalf("rows not appended in order: %v / %v", fake.cell(2, 0), fake.cell(3, 0))
	}

	food.Description = "edited"
	if err := c.Upsert(ctx, food); err != nil {
		t.Fatal(err)
	}
	if fake.cell(2, 5) != "edited" {
		t.Fatalf("expected row 2 to be replaced, got %v", fake.cell(2, 5))
	}

	if err := c.Remove(ctx, 10); err != nil {
		t.Fatal(err)
	}
	if fake.cell(2, 0) != nil {
		t.Fatal("expected row 2 to be cleared")
	}
	if err := c.Remove(ctx, 99); err != nil {
		t.Fatalf("removing an unknown id should succeed: %v", err)
	}
	if fake.gets != 1 {
		t.Fatalf("expected the ID column to be read once, got %d", fake.gets)
	}

	// A fresh client indexes the existing sheet instead of appending duplicates.
	fresh := newTestClient(t, fake)
	salary.Amount = decimal.NewFromInt(1200)
	if err := fresh.Upsert(ctx, salary); err != nil {
		t.Fatal(err)
	}
	if fake.cell(3, 4) != "1200.00" {
		t.Fatalf("expected row 3 to be updated, got %v", fake.cell(3, 4))
	}
	if fake.cell(4, 0) != nil {
		t.Fatal("unexpected appended row")
	}
}

func TestClient_ConcurrentUpsertsKeepEveryRow(t *testing.T) {
	fake := &fakeSheet{grid: map[int][]any{}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	row := func(id int64) sheets.Row {
		return sheets.Row{ID: id, Date: core.NewDate(2024, 1, 1), Category: "Food", Type: core.Expense, Amount: decimal.NewFromInt(id)}
	}
	if err := c.Upsert(ctx, row(1)); err != nil {
		t.Fatal(err)
	}

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if err := c.Upsert(ctx, row(id)); err != nil {
				t.Errorf("upsert %d: %v", id, err)
			}
		}(int64(i + 2))
	}
	wg.Wait()

	seen := map[string]bool{}
	for n := 2; n <= writers+2; n++ {
		if id := fake.cell(n, 0); id != nil {
			seen[id.(string)] = true
		}
	}
	if len(seen) != writers+1 {
		t.Fatalf("expected %d mirrored rows, found %d", writers+1, len(seen))
	}
}
