package report

import "dompet/internal/core"

var recentHeaders = []string{"Category", "Amount", "Date", "Type"}

// BuildRecentTable renders at most limit of the newest entries.
func BuildRecentTable(entries []core.Entry, limit int) RecentTable {
	sorted := append([]core.Entry(nil), entries...)
	core.SortNewestFirst(sorted)
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	rows := make([][]string, 0, len(sorted))
	for _, e := range sorted {
		rows = append(rows, []string{
			e.CategoryName,
			core.FormatRp(e.Amount),
			e.Date.String(),
			e.CategoryType.Title(),
		})
	}
	return RecentTable{
		Headers: append([]string(nil), recentHeaders...),
		Rows:    rows,
	}
}
