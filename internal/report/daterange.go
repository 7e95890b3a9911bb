package report

import (
	"strings"

	"dompet/internal/core"
)

const (
	dayLabelLayout   = "02 Jan"
	rangeLabelLayout = "02 Jan 2006"
)

// Range is an inclusive span of calendar dates with every day materialized.
type Range struct {
	Start core.Date   `json:"start"`
	End   core.Date   `json:"end"`
	Label string      `json:"label"`
	Days  []core.Date `json:"-"`
}

// Span is a bare start/end pair used for quick-range shortcuts.
type Span struct {
	Start core.Date `json:"start"`
	End   core.Date `json:"end"`
}

// QuickRanges are shortcuts relative to today, independent of the resolved range.
type QuickRanges struct {
	ThisMonth Span `json:"this_month"`
	LastMonth Span `json:"last_month"`
	YTD       Span `json:"ytd"`
	Last7     Span `json:"last_7"`
	Last30    Span `json:"last_30"`
	Last90    Span `json:"last_90"`
}

// MaxRangeDays is the longest range the HTTP API serves, about ten years.
// The engine itself accepts any range.
const MaxRangeDays = 3660

// Days is the number of calendar days in the span, both ends included.
func (s Span) Days() int {
	return daysBetween(s.Start, s.End) + 1
}

func daysBetween(start, end core.Date) int {
	return int((end.Unix() - start.Unix()) / 86400)
}

// NewRange builds the range [start, end]. start must not be after end.
func NewRange(start, end core.Date) Range {
	days := make([]core.Date, 0, daysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, d)
	}
	return Range{
		Start: start,
		End:   end,
		Label: start.Format(rangeLabelLayout) + " – " + end.Format(rangeLabelLayout),
		Days:  days,
	}
}

// ResolveRange turns optional caller input into a concrete range.
//
// If either bound is missing or unparseable the current month of today is
// used. Reversed bounds are swapped rather than rejected.
func ResolveRange(start, end string, today core.Date) Range {
	b := ResolveBounds(start, end, today)
	return NewRange(b.Start, b.End)
}

// ResolveBounds applies the ResolveRange rules without materializing days.
func ResolveBounds(start, end string, today core.Date) Span {
	first, last := today.MonthBounds()
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return Span{Start: first, End: last}
	}
	s, errStart := core.ParseDate(start)
	e, errEnd := core.ParseDate(end)
	if errStart != nil || errEnd != nil {
		return Span{Start: first, End: last}
	}
	if s.After(e) {
		s, e = e, s
	}
	return Span{Start: s, End: e}
}

// QuickRangesFor computes the shortcut ranges for today.
func QuickRangesFor(today core.Date) QuickRanges {
	thisStart, thisEnd := today.MonthBounds()
	lastStart, lastEnd := thisStart.AddDays(-1).MonthBounds()
	return QuickRanges{
		ThisMonth: Span{Start: thisStart, End: thisEnd},
		LastMonth: Span{Start: lastStart, End: lastEnd},
		YTD:       Span{Start: core.NewDate(today.Year(), 1, 1), End: today},
		Last7:     Span{Start: today.AddDays(-6), End: today},
		Last30:    Span{Start: today.AddDays(-29), End: today},
		Last90:    Span{Start: today.AddDays(-89), End: today},
	}
}
