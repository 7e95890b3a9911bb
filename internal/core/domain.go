package core

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  CategoryType = "income"
	Expense CategoryType = "expense"
)

// ISODate is the wire and storage layout for calendar dates.
const ISODate = "2006-01-02"

type (
	CategoryType string

	// Date is a calendar date, always held at midnight UTC.
	Date struct {
		time.Time
	}

	// OwnerScope restricts ledger queries to one owner. The zero value is unscoped.
	OwnerScope struct {
		OwnerID string
	}

	Category struct {
		ID      int64
		OwnerID string
		Name    string
		Type    CategoryType
	}

	Transaction struct {
		ID          int64
		OwnerID     string
		CategoryID  int64
		Amount      decimal.Decimal
		Description string
		Date        Date
		CreatedAt   time.Time
	}

	// Entry is a transaction joined with its category, as the report engine reads it.
	Entry struct {
		Transaction
		CategoryName string
		CategoryType CategoryType
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidCategoryType = errors.New("invalid category type")
	ErrEmptyName           = errors.New("empty category name")
	ErrNameTooLong         = errors.New("category name too long (max 100 characters)")
	ErrMissingCategory     = errors.New("missing category")
	ErrInvalidDate         = errors.New("invalid date")
)

// SortNewestFirst orders entries by date, then by entry time, newest first.
// Entries equal on both keep their order.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

// maxAmount is the largest value a DECIMAL(15,2) column holds.
var maxAmount = decimal.RequireFromString("9999999999999.99")

// ParseCategoryType accepts "income" or "expense" in any case.
func ParseCategoryType(s string) (CategoryType, error) {
	switch CategoryType(strings.ToLower(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	}
	return "", ErrInvalidCategoryType
}

func (t CategoryType) Valid() bool {
	return t == Income || t == Expense
}

// Title returns the display form, e.g. "Income".
func (t CategoryType) Title() string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO date; single-digit months and days are accepted.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-1-2", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(ISODate)
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// Before reports whether d is an earlier calendar day than o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is a later calendar day than o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

// MonthBounds returns the first and last day of d's month.
func (d Date) MonthBounds() (Date, Date) {
	first := NewDate(d.Year(), int(d.Month()), 1)
	last := Date{Time: first.AddDate(0, 1, -1)}
	return first, last
}

// ValidateAmount checks an amount fits the ledger column: non-negative, two decimals.
func ValidateAmount(a decimal.Decimal) error {
	if a.IsNegative() {
		return ErrInvalidAmount
	}
	if !a.Equal(a.Truncate(2)) {
		return ErrInvalidAmount
	}
	if a.GreaterThan(maxAmount) {
		return ErrInvalidAmount
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return ErrNameTooLong
	}
	if !c.Type.Valid() {
		return ErrInvalidCategoryType
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.CategoryID <= 0 {
		return ErrMissingCategory
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	return nil
}

// MarshalJSON writes the ISO form.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON reads the ISO form.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
