package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"queue-monitor/internal/config"
	"queue-monitor/internal/monitor"
	"queue-monitor/internal/store"
	"queue-monitor/internal/telemetry"
)

// Deletes log rows older than the retention window once.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		telemetry.NewLogger(os.Stderr, "error", "purge").Error("load config", "error", err)
		return 1
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel, "purge")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("init tracing", "error", err)
		return 1
	}
	defer shutdownTracing(context.Background())

	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Error("open log store", "driver", cfg.StoreDriver, "error", err)
		return 1
	}
	defer st.Close()

	svc := monitor.NewService(st, nil, monitor.SettingsFromConfig(cfg), logger)
	if _, err := svc.RunPurge(ctx); err != nil {
		return 1
	}
	return 0
}
