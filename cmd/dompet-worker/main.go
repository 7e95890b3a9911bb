package main

import (
	"context"
	"errors"
	"os"
	"time"

	"dompet/internal/backend"
	"dompet/internal/cli"
	dlog "dompet/internal/log"
	"dompet/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(dlog.ComponentWorker)
	logger.Info("Starting dompet-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend == string(backend.MemoryBackend) {
		logger.Warn("Memory backend is private to this process; the worker will only see its own seed data")
	}
	if cfg.EventBus == string(backend.NoBus) {
		logger.Warn("No event bus configured; relying on periodic reconciliation only")
	}

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
	defer result.Close()

	mirror, err := factory.NewMirror(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize mirror", "error", err)
		os.Exit(1)
	}

	busConfig, err := backend.BusFromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid event bus configuration", "error", err)
		os.Exit(1)
	}
	subscriber, err := factory.NewSubscriber(busConfig)
	if err != nil {
		logger.Error("Failed to open event subscriber", "error", err, "event_bus", cfg.EventBus)
		os.Exit(1)
	}

	mirrorWorker := worker.NewMirrorWorker(result.Store, mirror, cfg.MirrorBatchSize, cfg.MirrorInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := mirrorWorker.Stop(ctx); err != nil {
			logger.Error("Mirror worker stop error", "error", err)
		}
		if err := subscriber.Close(); err != nil {
			logger.Error("Failed to close event subscriber", "error", err)
		}
	})

	if err := mirrorWorker.Start(ctx); err != nil {
		logger.Error("Failed to start mirror worker", "error", err)
		os.Exit(1)
	}

	go func() {
		err := subscriber.Consume(ctx, mirrorWorker.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event consumption failed", "error", err)
		}
	}()

	logger.Info("Worker running",
		"event_bus", cfg.EventBus,
		"mirror_enabled", cfg.MirrorEnabled(),
		"interval", cfg.MirrorInterval)

	<-ctx.Done()
	<-done
	logger.Info("Worker stopped gracefully")
}
