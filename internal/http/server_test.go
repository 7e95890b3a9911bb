package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dompet/internal/cache"
	"dompet/internal/core"
	"dompet/internal/ledger"
	"dompet/internal/ledger/memory"
	dlog "dompet/internal/log"
	"dompet/internal/report"
	"dompet/internal/services"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	store *memory.Store
	svc   *services.LedgerService
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	store := memory.New([]core.Category{
		{Name: "Food", Type: core.Expense},
		{Name: "Salary", Type: core.Income},
	})
	svc := services.NewLedgerService(store, nil)
	deps := Deps{
		Ledger: svc,
		Lister: store,
		Aggregator: report.NewAggregator(store,
			report.WithClock(func() time.Time { return fixedNow }),
			report.WithLocation(time.UTC)),
		Reports:            cache.NewReportCache(16, time.Minute),
		Logger:             dlog.New(dlog.Config{Output: io.Discard}),
		RateLimitPerMinute: 1000,
	}
	if mutate != nil {
		mutate(&deps)
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &testEnv{srv: srv, store: store, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, target, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(HeaderOwnerID, owner)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

type dashboardBody struct {
	DateFilter struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Label string `json:"label"`
	} `json:"date_filter"`
	Stats struct {
		Categories   int    `json:"categories"`
		Transactions int    `json:"transactions"`
		IncomeTotal  string `json:"income_total"`
		ExpenseTotal string `json:"expense_total"`
		NetTotal     string `json:"net_total"`
	} `json:"stats"`
	StatsDisplay struct {
		NetTotal string `json:"net_total"`
	} `json:"stats_display"`
	ExpenseRatio float64 `json:"expense_ratio"`
	Daily        struct {
		Days    []string  `json:"days"`
		Expense []float64 `json:"expense"`
	} `json:"daily"`
	TopCategories []struct {
		Name           string `json:"name"`
		PercentDisplay string `json:"percent_display"`
	} `json:"top_categories"`
	RecentTable struct {
		Rows [][]string `json:"rows"`
	} `json:"recent_table"`
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Ping = func(context.Context) error { return errors.New("connection refused") }
	})
	rr := env.do(t, http.MethodGet, "/readyz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "connection refused") {
		t.Fatalf("expected failure detail in body: %s", rr.Body.String())
	}
}

func TestDashboardEmptyRange(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/dashboard?start=2024-03-01&end=2024-03-03", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	body := decode[dashboardBody](t, rr)
	if body.DateFilter.Start != "2024-03-01" || body.DateFilter.End != "2024-03-03" {
		t.Fatalf("unexpected range %+v", body.DateFilter)
	}
	if body.DateFilter.Label != "01 Mar 2024 – 03 Mar 2024" {
		t.Fatalf("unexpected label %q", body.DateFilter.Label)
	}
	if len(body.Daily.Days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(body.Daily.Days))
	}
	if body.Stats.Transactions != 0 || body.ExpenseRatio != 0 || len(body.TopCategories) != 0 {
		t.Fatalf("expected empty stats, got %+v", body.Stats)
	}
	if body.StatsDisplay.NetTotal != "Rp 0,00" {
		t.Fatalf("net display = %q", body.StatsDisplay.NetTotal)
	}
}

func TestDashboardDefaultsToCurrentMonth(t *testing.T) {
	env := newTestEnv(t, nil)
	body := decode[dashboardBody](t, env.do(t, http.MethodGet, "/api/dashboard?start=garbage", "", ""))
	if body.DateFilter.Start != "2024-03-01" || body.DateFilter.End != "2024-03-31" {
		t.Fatalf("expected current month, got %+v", body.DateFilter)
	}
	if len(body.Daily.Days) != 31 {
		t.Fatalf("expected 31 days, got %d", len(body.Daily.Days))
	}
}

func TestCreateTransactionInvalidatesReport(t *testing.T) {
	env := newTestEnv(t, nil)
	const target = "/api/dashboard?start=2024-03-01&end=2024-03-03"

	before := decode[dashboardBody](t, env.do(t, http.MethodGet, target, "", ""))
	if before.Stats.Transactions != 0 {
		t.Fatalf("expected no transactions, got %d", before.Stats.Transactions)
	}
	env.do(t, http.MethodGet, target, "", "")
	if hits := atomic.LoadInt64(&env.srv.appMetrics.cacheHits); hits != 1 {
		t.Fatalf("expected one cache hit, got %d", hits)
	}

	rr := env.do(t, http.MethodPost, "/api/transactions", "",
		`{"category_id":1,"amount":"12500,50","description":"groceries","date":"2024-03-02"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[transactionJSON](t, rr)
	if created.ID == 0 || created.Amount.StringFixed(2) != "12500.50" || created.AmountDisplay != "Rp 12.500,50" {
		t.Fatalf("unexpected created transaction %+v", created)
	}

	after := decode[dashboardBody](t, env.do(t, http.MethodGet, target, "", ""))
	if after.Stats.Transactions != 1 || after.Stats.ExpenseTotal != "12500.5" {
		t.Fatalf("stale report after write: %+v", after.Stats)
	}
	if len(after.TopCategories) != 1 || after.TopCategories[0].Name != "Food" || after.TopCategories[0].PercentDisplay != "100%" {
		t.Fatalf("unexpected top categories %+v", after.TopCategories)
	}
	if got := after.Daily.Expense; len(got) != 3 || got[1] != 12500.5 || got[0] != 0 {
		t.Fatalf("unexpected daily expense %v", got)
	}
	if len(after.RecentTable.Rows) != 1 || after.RecentTable.Rows[0][0] != "Food" {
		t.Fatalf("unexpected recent rows %v", after.RecentTable.Rows)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed json", `{"category_id":`, http.StatusBadRequest},
		{"unknown field", `{"category_id":1,"amount":"1","colour":"red"}`, http.StatusBadRequest},
		{"bad amount", `{"category_id":1,"amount":"abc"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"category_id":1,"amount":"-5"}`, http.StatusUnprocessableEntity},
		{"three decimals", `{"category_id":1,"amount":"1.005"}`, http.StatusUnprocessableEntity},
		{"missing category", `{"amount":"10"}`, http.StatusUnprocessableEntity},
		{"unknown category", `{"category_id":999,"amount":"10"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"category_id":1,"amount":"10","date":"2024-02-30"}`, http.StatusUnprocessableEntity},
		{"numeric amount defaults date", `{"category_id":1,"amount":10.25}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/transactions", "", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			if tt.want == http.StatusCreated {
				got := decode[transactionJSON](t, rr)
				if got.Date.String() != "2024-03-15" {
					t.Fatalf("expected today's date, got %s", got.Date)
				}
			}
		})
	}
}

func TestCategoryLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/categories", "", `{"name":"Travel","type":"expense"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	cat := decode[categoryJSON](t, rr)
	if cat.Name != "Travel" || cat.Type != core.Expense || cat.ID == 0 {
		t.Fatalf("unexpected category %+v", cat)
	}

	for _, body := range []string{`{"name":"X","type":"transfer"}`, `{"name":"  ","type":"income"}`} {
		if rr := env.do(t, http.MethodPost, "/api/categories", "", body); rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: expected 422, got %d", body, rr.Code)
		}
	}

	list := decode[struct {
		Categories []categoryJSON `json:"categories"`
	}](t, env.do(t, http.MethodGet, "/api/categories", "", ""))
	if len(list.Categories) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(list.Categories))
	}

	env.do(t, http.MethodPost, "/api/transactions", "", `{"category_id":3,"amount":"50","date":"2024-03-05"}`)

	path := "/api/categories/" + jsonID(cat.ID)
	if rr := env.do(t, http.MethodDelete, path, "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodDelete, path, "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/categories/abc", "", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d", rr.Code)
	}

	body := decode[dashboardBody](t, env.do(t, http.MethodGet, "/api/dashboard?start=2024-03-01&end=2024-03-31", "", ""))
	if body.Stats.Transactions != 0 {
		t.Fatalf("cascaded transaction still reported: %+v", body.Stats)
	}
}

func TestOwnerScoping(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/categories", "alice", `{"name":"Rent","type":"expense"}`)
	cat := decode[categoryJSON](t, rr)
	if cat.OwnerID != "alice" {
		t.Fatalf("owner not recorded: %+v", cat)
	}
	rr = env.do(t, http.MethodPost, "/api/transactions", "alice",
		`{"category_id":`+jsonID(cat.ID)+`,"amount":"100","date":"2024-03-10"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	tx := decode[transactionJSON](t, rr)

	const target = "/api/dashboard?start=2024-03-01&end=2024-03-31"
	views := map[string]int{"alice": 1, "bob": 0, "": 1}
	for owner, want := range views {
		body := decode[dashboardBody](t, env.do(t, http.MethodGet, target, owner, ""))
		if body.Stats.Transactions != want {
			t.Errorf("owner %q sees %d transactions, want %d", owner, body.Stats.Transactions, want)
		}
	}

	if rr := env.do(t, http.MethodPost, "/api/transactions", "bob",
		`{"category_id":`+jsonID(cat.ID)+`,"amount":"1"}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bob used alice's category: status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/transactions/"+jsonID(tx.ID), "bob", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("bob deleted alice's transaction: status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/transactions/"+jsonID(tx.ID), "alice", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("alice delete status=%d", rr.Code)
	}

	body := decode[dashboardBody](t, env.do(t, http.MethodGet, target, "", ""))
	if body.Stats.Transactions != 0 {
		t.Fatalf("unscoped view kept a deleted transaction")
	}
}

func TestListTransactions(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, body := range []string{
		`{"category_id":1,"amount":"10","date":"2024-02-28"}`,
		`{"category_id":1,"amount":"20","date":"2024-03-01"}`,
		`{"category_id":2,"amount":"30","date":"2024-03-02"}`,
	} {
		if rr := env.do(t, http.MethodPost, "/api/transactions", "", body); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d", rr.Code)
		}
	}

	list := decode[struct {
		Transactions []transactionJSON `json:"transactions"`
	}](t, env.do(t, http.MethodGet, "/api/transactions?start=2024-03-01&end=2024-03-31", "", ""))
	if len(list.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(list.Transactions))
	}
	first := list.Transactions[0]
	if first.Date.String() != "2024-03-02" || first.CategoryName != "Salary" || first.CategoryType != core.Income {
		t.Fatalf("unexpected first transaction %+v", first)
	}
}

func TestQuickRanges(t *testing.T) {
	env := newTestEnv(t, nil)
	q := decode[report.QuickRanges](t, env.do(t, http.MethodGet, "/api/quick-ranges", "", ""))
	if q.LastMonth.Start.String() != "2024-02-01" || q.LastMonth.End.String() != "2024-02-29" {
		t.Fatalf("unexpected last month %+v", q.LastMonth)
	}
	if q.Last7.Start.String() != "2024-03-09" {
		t.Fatalf("unexpected last 7 start %s", q.Last7.Start)
	}
}

func TestChartEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/transactions", "", `{"category_id":1,"amount":"40","date":"2024-03-02"}`)

	daily := decode[map[string]json.RawMessage](t, env.do(t, http.MethodGet, "/api/charts/daily?start=2024-03-01&end=2024-03-07", "", ""))
	if _, ok := daily["chart_data"]; !ok {
		t.Fatalf("daily chart missing chart_data: %v", daily)
	}
	cats := decode[map[string]json.RawMessage](t, env.do(t, http.MethodGet, "/api/charts/categories?start=2024-03-01&end=2024-03-07", "", ""))
	if !strings.Contains(string(cats["category_chart_data"]), "Food") {
		t.Fatalf("category chart missing Food: %s", cats["category_chart_data"])
	}
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.RateLimitPerMinute = 2 })
	body := `{"name":"N","type":"expense"}`
	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodPost, "/api/categories", "", body); rr.Code != http.StatusCreated {
			t.Fatalf("write %d status=%d", i, rr.Code)
		}
	}
	rr := env.do(t, http.MethodPost, "/api/categories", "", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	for i := 0; i < 5; i++ {
		if rr := env.do(t, http.MethodGet, "/api/categories", "", ""); rr.Code != http.StatusOK {
			t.Fatalf("read %d limited: %d", i, rr.Code)
		}
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/categories", "", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q", got)
	}

	if rr := env.do(t, http.MethodGet, "/api/categories?file=../../etc/passwd", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("suspicious GET should be logged, not blocked: %d", rr.Code)
	}
	if rr := env.do(t, "TRACE", "/api/categories", "", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("TRACE status=%d", rr.Code)
	}
}

func TestOwnerHeaderTooLong(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/dashboard", strings.Repeat("a", maxOwnerIDBytes+1), "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

// gatedReader holds DailyTotals until release is closed.
type gatedReader struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedReader) DailyTotals(ctx context.Context, q ledger.Query) ([]ledger.DailyTotal, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Store.DailyTotals(ctx, q)
}

func TestDashboardSurvivesCancelledJoinedRequest(t *testing.T) {
	var gate *gatedReader
	env := newTestEnv(t, func(d *Deps) {
		gate = &gatedReader{
			Store:   d.Lister.(*memory.Store),
			entered: make(chan struct{}),
			release: make(chan struct{}),
		}
		d.Aggregator = report.NewAggregator(gate,
			report.WithClock(func() time.Time { return fixedNow }),
			report.WithLocation(time.UTC))
	})

	serve := func(ctx context.Context) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/dashboard?start=2024-03-01&end=2024-03-03", nil).WithContext(ctx)
		rr := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rr, req)
		return rr
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	doneA := make(chan *httptest.ResponseRecorder, 1)
	go func() { doneA <- serve(ctxA) }()
	<-gate.entered

	doneB := make(chan *httptest.ResponseRecorder, 1)
	go func() { doneB <- serve(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	<-doneA
	close(gate.release)

	rrB := <-doneB
	if rrB.Code != http.StatusOK {
		t.Fatalf("joined request failed with %d: %s", rrB.Code, rrB.Body.String())
	}
	if got := decode[dashboardBody](t, rrB); got.DateFilter.Start != "2024-03-01" {
		t.Fatalf("unexpected range %+v", got.DateFilter)
	}
}

func TestRangeTooLongIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{
		"/api/dashboard?start=0001-01-01&end=9999-12-31",
		"/api/charts/daily?start=9999-12-31&end=0001-01-01",
		"/api/transactions?start=0001-01-01&end=9999-12-31",
	} {
		rr := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "date range too long") {
			t.Errorf("%s: got %d %s", path, rr.Code, rr.Body.String())
		}
	}
	if env.srv.ReportCache().Size() != 0 {
		t.Fatal("rejected range reached the report cache")
	}

	rr := env.do(t, http.MethodGet, "/api/dashboard?start=2015-01-01&end=2024-12-31", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("ten-year range: got %d", rr.Code)
	}
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
