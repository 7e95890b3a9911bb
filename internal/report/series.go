package report

import (
	"dompet/internal/core"
)

// TickHint suggests how many x-axis ticks a chart should show for a range of
// n days. It never changes the data.
func TickHint(n int) int {
	switch {
	case n <= 6:
		return n
	case n <= 14:
		return 7
	case n <= 31:
		return 8
	default:
		return 10
	}
}

// BuildDailySeries lays the grouped sums over every day of r. Days with no
// activity get zero.
func BuildDailySeries(r Range, sums DailySums) DailySeries {
	s := DailySeries{
		Days:     make([]string, 0, len(r.Days)),
		Labels:   make([]string, 0, len(r.Days)),
		Income:   make([]float64, 0, len(r.Days)),
		Expense:  make([]float64, 0, len(r.Days)),
		MaxTicks: TickHint(len(r.Days)),
	}
	for _, d := range r.Days {
		s.Days = append(s.Days, d.String())
		s.Labels = append(s.Labels, d.Format(dayLabelLayout))
		s.Income = append(s.Income, sums.Get(d, core.Income).InexactFloat64())
		s.Expense = append(s.Expense, sums.Get(d, core.Expense).InexactFloat64())
	}
	return s
}
