package report

import (
	"dompet/internal/core"
	"dompet/internal/ledger"

	"github.com/shopspring/decimal"
)

type dayTypeKey struct {
	day string
	typ core.CategoryType
}

// DailySums maps (day, category type) buckets to totals.
// Get returns zero for any bucket the ledger did not report.
type DailySums struct {
	totals map[dayTypeKey]decimal.Decimal
}

// NewDailySums indexes grouped ledger rows. Repeated buckets accumulate.
func NewDailySums(rows []ledger.DailyTotal) DailySums {
	totals := make(map[dayTypeKey]decimal.Decimal, len(rows))
	for _, r := range rows {
		k := dayTypeKey{day: r.Date.String(), typ: r.Type}
		totals[k] = totals[k].Add(r.Total)
	}
	return DailySums{totals: totals}
}

// Get returns the total for the bucket, or zero.
func (s DailySums) Get(day core.Date, typ core.CategoryType) decimal.Decimal {
	if v, ok := s.totals[dayTypeKey{day: day.String(), typ: typ}]; ok {
		return v
	}
	return decimal.Zero
}

// Total sums one category type over the given days.
func (s DailySums) Total(days []core.Date, typ core.CategoryType) decimal.Decimal {
	total := decimal.Zero
	for _, d := range days {
		total = total.Add(s.Get(d, typ))
	}
	return total
}

// CategorySums maps category names to totals, keeping the order in which the
// ledger first reported each name.
type CategorySums struct {
	names  []string
	totals map[string]decimal.Decimal
}

// NewCategorySums indexes grouped ledger rows. Repeated names accumulate.
func NewCategorySums(rows []ledger.CategoryTotal) CategorySums {
	s := CategorySums{totals: make(map[string]decimal.Decimal, len(rows))}
	for _, r := range rows {
		if _, seen := s.totals[r.Name]; !seen {
			s.names = append(s.names, r.Name)
		}
		s.totals[r.Name] = s.totals[r.Name].Add(r.Total)
	}
	return s
}

// Get returns the total for the category, or zero.
func (s CategorySums) Get(name string) decimal.Decimal {
	if v, ok := s.totals[name]; ok {
		return v
	}
	return decimal.Zero
}

// Names returns category names in first-seen order.
func (s CategorySums) Names() []string {
	return append([]string(nil), s.names...)
}
