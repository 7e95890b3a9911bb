// Package report computes period-bounded financial summaries from a ledger:
// totals, a zero-filled daily series, the top expense categories, the most
// recent transactions and the chart payloads a dashboard renders.
package report

import (
	"github.com/shopspring/decimal"
)

const (
	// RecentLimit caps the recent transactions table.
	RecentLimit = 8
	// TopCategoryLimit caps the expense category ranking.
	TopCategoryLimit = 5
)

var hundred = decimal.NewFromInt(100)

// Report is the derived dashboard summary for one range. It is recomputed on
// every request and never persisted.
type Report struct {
	DateFilter        Range           `json:"date_filter"`
	QuickRanges       QuickRanges     `json:"quick_ranges"`
	Stats             Stats           `json:"stats"`
	StatsDisplay      StatsDisplay    `json:"stats_display"`
	ExpenseRatio      float64         `json:"expense_ratio"`
	Daily             DailySeries     `json:"daily"`
	TopCategories     []CategoryShare `json:"top_categories"`
	RecentTable       RecentTable     `json:"recent_table"`
	ChartData         SeriesChart     `json:"chart_data"`
	CategoryChartData CategoryChart   `json:"category_chart_data"`
}

// Stats are the exact scalar totals for the range.
type Stats struct {
	Categories   int             `json:"categories"`
	Transactions int             `json:"transactions"`
	IncomeTotal  decimal.Decimal `json:"income_total"`
	ExpenseTotal decimal.Decimal `json:"expense_total"`
	NetTotal     decimal.Decimal `json:"net_total"`
}

type StatsDisplay struct {
	IncomeTotal  string `json:"income_total"`
	ExpenseTotal string `json:"expense_total"`
	NetTotal     string `json:"net_total"`
}

// DailySeries holds one income and one expense value per day of the range,
// aligned index for index with Days and Labels.
type DailySeries struct {
	Days     []string  `json:"days"`
	Labels   []string  `json:"labels"`
	Income   []float64 `json:"income"`
	Expense  []float64 `json:"expense"`
	MaxTicks int       `json:"max_ticks"`
}

// CategoryShare is one ranked expense category.
type CategoryShare struct {
	Name           string          `json:"name"`
	Total          decimal.Decimal `json:"total"`
	TotalDisplay   string          `json:"total_display"`
	Percent        float64         `json:"percent"`
	PercentDisplay string          `json:"percent_display"`
	ColorClass     string          `json:"color_class"`
	ColorValue     string          `json:"color_value"`
}

type RecentTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ratio returns min(100, part/whole*100), or zero when whole is not positive.
// The quotient is truncated at 16 places so shares never sum above 100.
func ratio(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	q, _ := part.Mul(hundred).QuoRem(whole, 16)
	return decimal.Min(hundred, q)
}
