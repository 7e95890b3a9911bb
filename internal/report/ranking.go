package report

import (
	"sort"

	"dompet/internal/core"

	"github.com/shopspring/decimal"
)

type paletteColor struct {
	class string
	value string
}

var categoryPalette = []paletteColor{
	{"bg-orange-500", "var(--color-orange-500)"},
	{"bg-blue-500", "var(--color-blue-500)"},
	{"bg-green-500", "var(--color-green-500)"},
	{"bg-red-500", "var(--color-red-500)"},
	{"bg-primary-600", "var(--color-primary-600)"},
}

// RankCategories returns the largest expense categories, at most limit of
// them, with their share of expenseTotal. Equal sums keep ledger order but
// callers must not rely on it.
func RankCategories(sums CategorySums, expenseTotal decimal.Decimal, limit int) []CategoryShare {
	names := sums.Names()
	sort.SliceStable(names, func(i, j int) bool {
		return sums.Get(names[i]).GreaterThan(sums.Get(names[j]))
	})
	if len(names) > limit {
		names = names[:limit]
	}

	out := make([]CategoryShare, 0, len(names))
	for i, name := range names {
		total := sums.Get(name)
		percent := ratio(total, expenseTotal)
		color := categoryPalette[i%len(categoryPalette)]
		out = append(out, CategoryShare{
			Name:           name,
			Total:          total,
			TotalDisplay:   core.FormatRp(total),
			Percent:        percent.InexactFloat64(),
			PercentDisplay: percent.StringFixedBank(0) + "%",
			ColorClass:     color.class,
			ColorValue:     color.value,
		})
	}
	return out
}
