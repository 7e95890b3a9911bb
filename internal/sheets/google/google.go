package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"dompet/internal/sheets"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultIndexTTL = 2 * time.Minute

// Options configures the Sheets client. Each credential may be given inline
// or as a file path; inline wins.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

// Client mirrors transactions into one sheet, one row per transaction ID.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string

	// writeMu serializes the sheet operations so an index lookup, the write it
	// drives and the index update happen as one step. Appends would
	// otherwise pick the same free row.
	writeMu sync.Mutex

	// Cached ID column. Rows are located by ID, so the column is re-read
	// only when the cache expires or a write changes the row count.
	mu                 sync.Mutex
	rowsByID           map[int64]int
	cachedRowCount     int
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

var _ sheets.TransactionMirror = (*Client)(nil)

var jsonUnmarshal = json.Unmarshal

// New creates a Sheets client authorised with a stored OAuth token.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheet := strings.TrimSpace(opts.SheetName)
	if sheet == "" {
		sheet = "Transactions"
	}
	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      opts.SpreadsheetID,
		sheet:              sheet,
		cacheValidDuration: defaultIndexTTL,
	}, nil
}

func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	clientJSON, err := inlineOrFile(opts.OAuthClientJSON, opts.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	if clientJSON == nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	tokenJSON, err := inlineOrFile(opts.OAuthTokenJSON, opts.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if tokenJSON == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}

	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := jsonUnmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}

	// The oauth2 transport wraps whichever client the context carries.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(cfg.Client(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_scope", gsheet.SpreadsheetsScope)
	return svc, nil
}

func inlineOrFile(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if p := strings.TrimSpace(path); p != "" {
		return os.ReadFile(p)
	}
	return nil, nil
}

func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Upsert writes r into the row holding its ID, or appends a new row.
func (c *Client) Upsert(ctx context.Context, r sheets.Row) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if r.ID <= 0 {
		return fmt.Errorf("invalid row id %d", r.ID)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	index, next, err := c.index(ctx)
	if err != nil {
		return err
	}
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(r)}}

	if n, ok := index[r.ID]; ok {
		rng := fmt.Sprintf("%s!A%d:F%d", c.sheet, n, n)
		if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
			return fmt.Errorf("update %s: %w", rng, err)
		}
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:F%d", c.sheet, next, next)
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		c.invalidate()
		return fmt.Errorf("write %s: %w", rng, err)
	}
	c.remember(r.ID, next)
	return nil
}

// Remove clears the row holding id.
func (c *Client) Remove(ctx context.Context, id int64) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	index, _, err := c.index(ctx)
	if err != nil {
		return err
	}
	n, ok := index[id]
	if !ok {
		slog.DebugContext(ctx, "No mirrored row to clear", "transaction_id", id)
		return nil
	}
	rng := fmt.Sprintf("%s!A%d:F%d", c.sheet, n, n)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	c.forget(id)
	return nil
}

// MirroredIDs returns the IDs found in the sheet's ID column, ascending.
func (c *Client) MirroredIDs(ctx context.Context) ([]int64, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	index, _, err := c.index(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// index returns the row number of every mirrored ID and the next free row.
// Callers hold writeMu; the returned map is only touched under it.
func (c *Client) index(ctx context.Context) (map[int64]int, int, error) {
	c.mu.Lock()
	if c.rowsByID != nil && time.Now().Before(c.cacheExpiresAt) {
		defer c.mu.Unlock()
		return c.rowsByID, c.cachedRowCount + 1, nil
	}
	c.mu.Unlock()

	rng := fmt.Sprintf("%s!A:A", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) == 0 {
		if err := c.writeHeader(ctx); err != nil {
			return nil, 0, err
		}
		resp.Values = [][]any{{sheets.Header[0]}}
	}
	rows, count := indexIDColumn(resp.Values)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rowsByID = rows
	c.cachedRowCount = count
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	return c.rowsByID, c.cachedRowCount + 1, nil
}

func (c *Client) writeHeader(ctx context.Context) error {
	header := make([]any, len(sheets.Header))
	for i, h := range sheets.Header {
		header[i] = h
	}
	rng := fmt.Sprintf("%s!A1:F1", c.sheet)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (c *Client) remember(id int64, row int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rowsByID == nil {
		return
	}
	c.rowsByID[id] = row
	if row > c.cachedRowCount {
		c.cachedRowCount = row
	}
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rowsByID, id)
}

func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheExpiresAt = time.Time{}
}

// indexIDColumn maps numeric IDs in column A to 1-based row numbers and
// returns the number of rows read. Cleared rows in the middle keep their place.
func indexIDColumn(values [][]any) (map[int64]int, int) {
	rows := make(map[int64]int, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[0])), 10, 64)
		if err != nil {
			continue
		}
		rows[id] = i + 1
	}
	return rows, len(values)
}

func rowValues(r sheets.Row) []any {
	return []any{
		strconv.FormatInt(r.ID, 10),
		r.Date.String(),
		r.Category,
		r.Type.Title(),
		r.Amount.StringFixed(2),
		r.Description,
	}
}
