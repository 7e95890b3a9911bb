//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"dompet/internal/core"
	"dompet/internal/ledger"

	"github.com/shopspring/decimal"
)

// Integration tests require a reachable PostgreSQL server
// Run with: POSTGRES_TEST_URL=postgres://... go test -tags=integration ./internal/storage/postgres

func TestIntegration_LedgerRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	owner := core.OwnerScope{OwnerID: "it-" + time.Now().Format("150405.000000")}
	cat, err := store.CreateCategory(ctx, core.Category{OwnerID: owner.OwnerID, Name: "Food", Type: core.Expense})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	defer store.DeleteCategory(ctx, owner, cat.ID)

	tx, err := store.CreateTransaction(ctx, core.Transaction{
		OwnerID:    owner.OwnerID,
		CategoryID: cat.ID,
		Amount:     decimal.RequireFromString("1234.56"),
		Date:       core.NewDate(2024, 3, 2),
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	q := ledger.Query{Owner: owner, Start: core.NewDate(2024, 3, 1), End: core.NewDate(2024, 3, 31)}
	daily, err := store.DailyTotals(ctx, q)
	if err != nil || len(daily) != 1 || !daily[0].Total.Equal(decimal.RequireFromString("1234.56")) {
		t.Fatalf("daily = %+v err=%v", daily, err)
	}

	entry, err := store.GetEntry(ctx, owner, tx.ID)
	if err != nil || entry.CategoryName != "Food" || entry.Date.String() != "2024-03-02" {
		t.Fatalf("entry = %+v err=%v", entry, err)
	}

	if err := store.DeleteCategory(ctx, owner, cat.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	if _, err := store.GetEntry(ctx, owner, tx.ID); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("cascade failed: %v", err)
	}
}
