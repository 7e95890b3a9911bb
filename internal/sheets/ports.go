package sheets

import (
	"context"

	"dompet/internal/core"

	"github.com/shopspring/decimal"
)

// Header is the first row of the mirror sheet.
var Header = []string{"ID", "Date", "Category", "Type", "Amount", "Description"}

// Row is one mirrored transaction.
type Row struct {
	ID          int64
	Date        core.Date
	Category    string
	Type        core.CategoryType
	Amount      decimal.Decimal
	Description string
}

func RowFromEntry(e core.Entry) Row {
	return Row{
		ID:          e.ID,
		Date:        e.Date,
		Category:    e.CategoryName,
		Type:        e.CategoryType,
		Amount:      e.Amount,
		Description: e.Description,
	}
}

// Ports for outbound adapters.
type (
	// TransactionMirror keeps one sheet row per transaction, keyed by ID.
	TransactionMirror interface {
		// Upsert writes the row, replacing an existing row with the same ID.
		Upsert(ctx context.Context, r Row) error
		// Remove clears the row with the given ID. Missing rows are not an error.
		Remove(ctx context.Context, id int64) error
		// MirroredIDs lists the IDs currently present in the sheet.
		MirroredIDs(ctx context.Context) ([]int64, error)
	}
)
