package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"dompet/internal/cache"
	"dompet/internal/events"
	"dompet/internal/ledger"
	dlog "dompet/internal/log"
	"dompet/internal/middleware/ratelimit"
	"dompet/internal/middleware/security"
	"dompet/internal/middleware/trace"
	"dompet/internal/report"
	"dompet/internal/services"
)

// Deps are the collaborators the API serves from.
type Deps struct {
	Ledger     *services.LedgerService
	Lister     ledger.Lister
	Aggregator *report.Aggregator
	Reports    *cache.ReportCache
	Logger     *dlog.Logger

	// Ping checks the store for /readyz. Nil means always ready.
	Ping func(ctx context.Context) error

	RateLimitPerMinute int
	TrustedProxies     []string
}

// Server wraps http.Server with the dashboard API.
type Server struct {
	http.Server

	ledger     *services.LedgerService
	lister     ledger.Lister
	aggregator *report.Aggregator
	reports    *cache.ReportCache
	ping       func(ctx context.Context) error
	hub        *Hub

	logger     *dlog.Logger
	structured *dlog.StructuredLogger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	appMetrics struct {
		uptime       time.Time
		transactions int64
		cacheHits    int64
		cacheMisses  int64
	}

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// The websocket hub starts immediately and stops in Shutdown.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = dlog.New(dlog.DefaultConfig())
	}
	logger = logger.WithComponent(dlog.ComponentHTTP)

	s := &Server{
		ledger:           deps.Ledger,
		lister:           deps.Lister,
		aggregator:       deps.Aggregator,
		reports:          deps.Reports,
		ping:             deps.Ping,
		hub:              NewHub(),
		logger:           logger,
		structured:       dlog.NewStructuredLogger(logger),
		securityDetector: security.NewDetector(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.RateLimitPerMinute,
		}),
	}
	s.appMetrics.uptime = time.Now()
	if s.reports == nil {
		s.reports = cache.NewReportCache(256, 5*time.Minute)
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP)

	s.hub.Start()
	if s.ledger != nil {
		s.ledger.Subscribe(s.onLedgerChanged)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/charts/daily", s.handleDailyChart)
	mux.HandleFunc("GET /api/charts/categories", s.handleCategoryChart)
	mux.HandleFunc("GET /api/quick-ranges", s.handleQuickRanges)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// chain wraps the mux, outermost first: context logger, tracing, request ID
// logging, suspicious request detection, headers, write rate limiting.
func (s *Server) chain(h http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(
		s.securityDetector.ExtractClientIP,
		func(w http.ResponseWriter, r *http.Request) {
			dlog.FromContext(r.Context()).WithComponent(dlog.ComponentRateLimit).
				WarnContext(r.Context(), "Rate limit exceeded",
					dlog.FieldMethod, r.Method,
					dlog.FieldPath, r.URL.Path)
			TooManyRequestsError().Write(w)
		},
		http.MethodPost, http.MethodDelete,
	)(h)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(limited)
	detected := s.securityDetector.Middleware(s.securityDetector.ExtractClientIP)(headers)
	withID := dlog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(detected)
	traced := s.traceMiddleware.Middleware(withID)
	return dlog.Middleware(s.logger)(traced)
}

// onLedgerChanged drops cached reports the change can affect and notifies
// connected dashboards.
func (s *Server) onLedgerChanged(ctx context.Context, e events.LedgerChanged) {
	if e.AffectsTransactions() {
		n := s.reports.InvalidateOwner(e.OwnerID)
		dlog.FromContext(ctx).WithComponent(dlog.ComponentCache).DebugContext(ctx, "Reports invalidated",
			dlog.FieldOwnerID, e.OwnerID,
			"kind", e.Kind,
			"entries", n)
	}
	s.hub.Broadcast(e)
}

// ReportCache exposes the cache so the caller can register it for cleanup.
func (s *Server) ReportCache() *cache.ReportCache {
	return s.reports
}

// Shutdown stops the hub and rate limiter, then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		if err := s.hub.Stop(ctx); err != nil {
			s.logger.Warn("Websocket hub did not stop cleanly", dlog.FieldError, err)
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) countCache(hit bool) {
	if hit {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)
}
