//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"dompet/internal/core"
	"dompet/internal/sheets"

	"github.com/shopspring/decimal"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_MirrorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	opts := Options{
		SpreadsheetID:   os.Getenv("GOOGLE_SPREADSHEET_ID"),
		SheetName:       os.Getenv("GOOGLE_SHEET_NAME"),
		OAuthClientJSON: os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"),
		OAuthClientFile: os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"),
		OAuthTokenJSON:  os.Getenv("GOOGLE_OAUTH_TOKEN_JSON"),
		OAuthTokenFile:  os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"),
	}
	if opts.SpreadsheetID == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	if (opts.OAuthClientJSON == "" && opts.OAuthClientFile == "") || (opts.OAuthTokenJSON == "" && opts.OAuthTokenFile == "") {
		t.Skip("OAuth credentials not configured, skipping integration test")
	}

	ctx := context.Background()
	client, err := New(ctx, opts)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	id := time.Now().UnixNano()
	row := sheets.Row{
		ID:          id,
		Date:        core.DateOf(time.Now()),
		Category:    "Integration",
		Type:        core.Expense,
		Amount:      decimal.RequireFromString("1.23"),
		Description: "integration test row",
	}
	if err := client.Upsert(ctx, row); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	row.Description = "integration test row (updated)"
	if err := client.Upsert(ctx, row); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}
	if err := client.Remove(ctx, id); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}
