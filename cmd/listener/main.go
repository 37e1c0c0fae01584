package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queue-monitor/internal/config"
	"queue-monitor/internal/listener"
	"queue-monitor/internal/queue"
	"queue-monitor/internal/store"
	"queue-monitor/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.NewLogger(os.Stderr, "error", "listener").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel, "listener")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("init tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	st, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Error("open log store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	q := queue.NewRedisQueue(cfg, logger)
	defer q.Close()

	metrics := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	defer metrics.Close()

	l := listener.New(st, logger)
	logger.Info("listener started", "events_key", cfg.EventsKey, "store", cfg.StoreDriver)
	if err := q.Consume(ctx, l.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("listener stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("listener stopped")
}
