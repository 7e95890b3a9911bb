package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"dompet/internal/cache"
	"dompet/internal/core"
	"dompet/internal/ledger"
	dlog "dompet/internal/log"
	"dompet/internal/report"
)

const reportTimeout = 7 * time.Second

// resolveSpan resolves the request's range and rejects spans longer than
// report.MaxRangeDays. It writes the error response itself.
func (s *Server) resolveSpan(w http.ResponseWriter, r *http.Request, today core.Date) (report.Span, bool) {
	params := ParseRangeParams(r)
	span := report.ResolveBounds(params.Start, params.End, today)
	if span.Days() > report.MaxRangeDays {
		BadRequestError(fmt.Sprintf("date range too long (max %d days)", report.MaxRangeDays)).Write(w)
		return report.Span{}, false
	}
	return span, true
}

// buildReport serves the report for span from the cache, building it on a miss.
func (s *Server) buildReport(ctx context.Context, owner core.OwnerScope, today core.Date, span report.Span) (*report.Report, error) {
	start := time.Now()
	key := cache.ReportKey{OwnerID: owner.OwnerID, Today: today, Start: span.Start, End: span.End}

	rep, hit, err := s.reports.GetOrBuild(ctx, key, func(ctx context.Context) (*report.Report, error) {
		ctx, cancel := context.WithTimeout(ctx, reportTimeout)
		defer cancel()
		snap, err := s.aggregator.Read(ctx, ledger.Query{Owner: owner, Start: span.Start, End: span.End})
		if err != nil {
			return nil, err
		}
		return report.Compute(report.NewRange(span.Start, span.End), today, snap), nil
	})
	if err != nil {
		return nil, err
	}
	s.countCache(hit)
	s.structured.LogReportBuilt(ctx, owner.OwnerID, span.Start.String(), span.End.String(), hit, time.Since(start).Milliseconds())
	return rep, nil
}

// reportFor is the shared front half of the report endpoints. It writes the
// error response itself and returns nil on failure.
func (s *Server) reportFor(w http.ResponseWriter, r *http.Request) *report.Report {
	owner, err := ParseOwner(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return nil
	}
	today := s.aggregator.Today()
	span, ok := s.resolveSpan(w, r, today)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(r.Context(), reportTimeout)
	defer cancel()

	rep, err := s.buildReport(ctx, owner, today, span)
	if err != nil {
		s.structured.LogError(ctx, "Failed to build report", err, dlog.ComponentReport, dlog.OpBuild,
			dlog.NewFields().WithOwner(owner.OwnerID))
		ErrorFor(err).Write(w)
		return nil
	}
	return rep
}

// handleDashboard returns the full report for the requested range.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if rep := s.reportFor(w, r); rep != nil {
		NewJSONResponse().Data(rep).Write(w)
	}
}

func (s *Server) handleDailyChart(w http.ResponseWriter, r *http.Request) {
	if rep := s.reportFor(w, r); rep != nil {
		NewJSONResponse().Data(map[string]any{
			"date_filter": rep.DateFilter,
			"chart_data":  rep.ChartData,
		}).Write(w)
	}
}

func (s *Server) handleCategoryChart(w http.ResponseWriter, r *http.Request) {
	if rep := s.reportFor(w, r); rep != nil {
		NewJSONResponse().Data(map[string]any{
			"date_filter":         rep.DateFilter,
			"top_categories":      rep.TopCategories,
			"category_chart_data": rep.CategoryChartData,
		}).Write(w)
	}
}

// handleQuickRanges returns the shortcuts for today without touching the ledger.
func (s *Server) handleQuickRanges(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(report.QuickRangesFor(s.aggregator.Today())).Write(w)
}
