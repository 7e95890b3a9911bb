package http

import (
	"strings"
	"time"

	"dompet/internal/core"

	"github.com/shopspring/decimal"
)

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

type categoryJSON struct {
	ID      int64             `json:"id"`
	OwnerID string            `json:"owner_id"`
	Name    string            `json:"name"`
	Type    core.CategoryType `json:"type"`
}

func toCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{ID: c.ID, OwnerID: c.OwnerID, Name: c.Name, Type: c.Type}
}

type transactionJSON struct {
	ID            int64             `json:"id"`
	OwnerID       string            `json:"owner_id"`
	CategoryID    int64             `json:"category_id"`
	CategoryName  string            `json:"category_name,omitempty"`
	CategoryType  core.CategoryType `json:"category_type,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	AmountDisplay string            `json:"amount_display"`
	Description   string            `json:"description"`
	Date          core.Date         `json:"date"`
	CreatedAt     time.Time         `json:"created_at"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:            t.ID,
		OwnerID:       t.OwnerID,
		CategoryID:    t.CategoryID,
		Amount:        t.Amount,
		AmountDisplay: core.FormatRp(t.Amount),
		Description:   t.Description,
		Date:          t.Date,
		CreatedAt:     t.CreatedAt,
	}
}

func toEntryJSON(e core.Entry) transactionJSON {
	out := toTransactionJSON(e.Transaction)
	out.CategoryName = e.CategoryName
	out.CategoryType = e.CategoryType
	return out
}
