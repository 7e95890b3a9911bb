package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"dompet/internal/backend"
	"dompet/internal/cache"
	"dompet/internal/cli"
	apphttp "dompet/internal/http"
	dlog "dompet/internal/log"
	"dompet/internal/report"
	"dompet/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(dlog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	factory := backend.NewFactory(logger.Logger)

	storeConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := factory.CreateStore(context.Background(), storeConfig)
	if err != nil {
		logger.Error("Failed to open ledger store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	busConfig, err := backend.BusFromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid event bus configuration", "error", err)
		os.Exit(1)
	}
	publisher, err := factory.NewPublisher(busConfig)
	if err != nil {
		logger.Error("Failed to open event publisher", "error", err, "event_bus", cfg.EventBus)
		_ = result.Close()
		os.Exit(1)
	}

	ledgerService := services.NewLedgerService(result.Store, publisher)
	aggregator := report.NewAggregator(result.Store, report.WithLocation(cfg.Location()))
	reports := cache.NewReportCache(cfg.ReportCacheSize, cfg.ReportCacheTTL)

	cacheManager := cache.NewManager()
	cacheManager.Register(reports)
	cacheManager.StartCleanup(time.Minute)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:             ledgerService,
		Lister:             result.Store,
		Aggregator:         aggregator,
		Reports:            reports,
		Logger:             logger,
		Ping:               result.Ping,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 15 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
		if err := ledgerService.Close(); err != nil {
			logger.Error("Failed to close event publisher", "error", err)
		}
		if err := result.Close(); err != nil {
			logger.Error("Failed to close ledger store", "error", err)
		}
	})

	logger.Info("Starting dompet server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"event_bus", cfg.EventBus,
		"timezone", cfg.ReportTimezone)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	<-done
	logger.Info("Server stopped gracefully")
}
