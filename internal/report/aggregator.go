package report

import (
	"context"
	"time"

	"dompet/internal/core"
	"dompet/internal/ledger"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Snapshot is everything the aggregator reads from the ledger for one range.
type Snapshot struct {
	Daily        []ledger.DailyTotal
	Expenses     []ledger.CategoryTotal
	Transactions int
	Categories   int
	Recent       []core.Entry
}

// Aggregator builds reports from a ledger reader.
type Aggregator struct {
	reader ledger.Reader
	now    func() time.Time
	loc    *time.Location
}

type Option func(*Aggregator)

// WithClock overrides the time source used to determine today.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLocation sets the zone whose calendar date counts as today.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

func NewAggregator(reader ledger.Reader, opts ...Option) *Aggregator {
	a := &Aggregator{reader: reader, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Today is the current calendar date in the aggregator's location.
func (a *Aggregator) Today() core.Date {
	return core.DateOf(a.now().In(a.loc))
}

// Build resolves the caller's range and computes the report for owner.
// Ledger errors are returned unchanged.
func (a *Aggregator) Build(ctx context.Context, owner core.OwnerScope, start, end string) (*Report, error) {
	today := a.Today()
	r := ResolveRange(start, end, today)
	snap, err := a.Read(ctx, ledger.Query{Owner: owner, Start: r.Start, End: r.End})
	if err != nil {
		return nil, err
	}
	return Compute(r, today, snap), nil
}

// Read runs the independent ledger queries for q concurrently.
func (a *Aggregator) Read(ctx context.Context, q ledger.Query) (Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Daily, err = a.reader.DailyTotals(ctx, q)
		return err
	})
	g.Go(func() (err error) {
		snap.Expenses, err = a.reader.CategoryTotals(ctx, q, core.Expense)
		return err
	})
	g.Go(func() (err error) {
		snap.Transactions, err = a.reader.CountTransactions(ctx, q)
		return err
	})
	g.Go(func() (err error) {
		snap.Categories, err = a.reader.CountActiveCategories(ctx, q)
		return err
	})
	g.Go(func() (err error) {
		snap.Recent, err = a.reader.RecentEntries(ctx, q, RecentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Compute derives the report from a ledger snapshot. It does no I/O and
// returns equal output for equal input.
func Compute(r Range, today core.Date, snap Snapshot) *Report {
	daily := NewDailySums(snap.Daily)
	income := daily.Total(r.Days, core.Income)
	expense := daily.Total(r.Days, core.Expense)
	net := income.Sub(expense)

	series := BuildDailySeries(r, daily)
	top := RankCategories(NewCategorySums(snap.Expenses), expense, TopCategoryLimit)

	return &Report{
		DateFilter:  r,
		QuickRanges: QuickRangesFor(today),
		Stats: Stats{
			Categories:   snap.Categories,
			Transactions: snap.Transactions,
			IncomeTotal:  income,
			ExpenseTotal: expense,
			NetTotal:     net,
		},
		StatsDisplay: StatsDisplay{
			IncomeTotal:  core.FormatRp(income),
			ExpenseTotal: core.FormatRp(expense),
			NetTotal:     core.FormatRp(net),
		},
		ExpenseRatio:      ExpenseRatio(income, expense).InexactFloat64(),
		Daily:             series,
		TopCategories:     top,
		RecentTable:       BuildRecentTable(snap.Recent, RecentLimit),
		ChartData:         NewSeriesChart(series),
		CategoryChartData: NewCategoryChart(top),
	}
}

// ExpenseRatio is expense as a percentage of income, capped at 100. It is
// zero when there is no income.
func ExpenseRatio(income, expense decimal.Decimal) decimal.Decimal {
	return ratio(expense, income)
}
