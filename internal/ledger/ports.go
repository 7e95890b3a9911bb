// Package ledger defines the ports between the report engine and the stores
// that hold categories and transactions.
package ledger

import (
	"context"
	"errors"

	"dompet/internal/core"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("not found")

// Query bounds a ledger read to one owner and an inclusive date range.
type Query struct {
	Owner core.OwnerScope
	Start core.Date
	End   core.Date
}

// Contains reports whether d falls inside the query range.
func (q Query) Contains(d core.Date) bool {
	return !d.Before(q.Start) && !d.After(q.End)
}

// Matches reports whether a record owned by ownerID is visible to the query.
func (q Query) Matches(ownerID string) bool {
	return q.Owner.OwnerID == "" || q.Owner.OwnerID == ownerID
}

type (
	// DailyTotal is one group of the (date, category type) aggregation.
	DailyTotal struct {
		Date  core.Date
		Type  core.CategoryType
		Total decimal.Decimal
	}

	// CategoryTotal is one group of the per-category aggregation.
	CategoryTotal struct {
		Name  string
		Total decimal.Decimal
	}
)

// Ports for the ledger stores.
type (
	// Reader is the read-only view the report engine aggregates over.
	Reader interface {
		// DailyTotals sums amounts grouped by (date, category type) within the range.
		DailyTotals(ctx context.Context, q Query) ([]DailyTotal, error)
		// CategoryTotals sums amounts of one category type grouped by category name.
		CategoryTotals(ctx context.Context, q Query, typ core.CategoryType) ([]CategoryTotal, error)
		// CountTransactions counts transactions within the range.
		CountTransactions(ctx context.Context, q Query) (int, error)
		// CountActiveCategories counts distinct categories with a transaction in range.
		CountActiveCategories(ctx context.Context, q Query) (int, error)
		// RecentEntries returns up to limit in-range entries, newest first.
		RecentEntries(ctx context.Context, q Query, limit int) ([]core.Entry, error)
	}

	// Writer records categories and transactions.
	Writer interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		DeleteCategory(ctx context.Context, owner core.OwnerScope, id int64) error
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, owner core.OwnerScope, id int64) error
	}

	// Lister returns records for management screens and the sheet mirror.
	Lister interface {
		ListCategories(ctx context.Context, owner core.OwnerScope) ([]core.Category, error)
		GetCategory(ctx context.Context, owner core.OwnerScope, id int64) (core.Category, error)
		ListEntries(ctx context.Context, q Query) ([]core.Entry, error)
		GetEntry(ctx context.Context, owner core.OwnerScope, id int64) (core.Entry, error)
	}

	// Store is everything a backend provides.
	Store interface {
		Reader
		Writer
		Lister
		MirrorTracker
	}

	// MirrorTracker records which transactions have reached the spreadsheet mirror.
	MirrorTracker interface {
		// PendingMirror returns IDs of transactions not yet mirrored, oldest first.
		PendingMirror(ctx context.Context, limit int) ([]int64, error)
		MarkMirrored(ctx context.Context, id int64) error
		MarkMirrorFailed(ctx context.Context, id int64) error
	}
)
