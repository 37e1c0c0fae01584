package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queue-monitor/internal/config"
	"queue-monitor/internal/monitor"
	"queue-monitor/internal/notify"
	"queue-monitor/internal/scheduler"
	"queue-monitor/internal/store"
	"queue-monitor/internal/telemetry"
)

var taskNames = []string{"notify", "purge"}

// Long-running alternative to invoking notify and purge from system cron.
func main() {
	os.Exit(run(os.Args[1:]))
}

// parseFlags returns the task named by -run-now, or "" to keep running on
// the configured schedules.
func parseFlags(args []string) (string, error) {
	fs := flag.NewFlagSet("scheduler", flag.ContinueOnError)
	runNow := fs.String("run-now", "", "run one task (notify or purge) once and exit")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *runNow == "" {
		return "", nil
	}
	for _, name := range taskNames {
		if *runNow == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown task %q", *runNow)
}

func run(args []string) int {
	runNow, err := parseFlags(args)
	if err != nil {
		telemetry.NewLogger(os.Stderr, "error", "scheduler").Error("parse flags", "error", err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		telemetry.NewLogger(os.Stderr, "error", "scheduler").Error("load config", "error", err)
		return 1
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel, "scheduler")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	mailer := func() (notify.Mailer, error) {
		return notify.NewTransport(cfg.MailerTransport, cfg.SMTP, logger)
	}
	svc := monitor.NewService(st, notify.NewLazyNotifier(mailer, logger), monitor.SettingsFromConfig(cfg), logger)

	tasks := map[string]scheduler.Task{
		"notify": svc.RunNotify,
		"purge": func(ctx context.Context) error {
			_, err := svc.RunPurge(ctx)
			return err
		},
	}

	sched := scheduler.New(logger)
	if runNow != "" {
		if err := sched.RunNow(runNow, tasks[runNow]); err != nil {
			return 1
		}
		return 0
	}

	if err := sched.Add("notify", cfg.NotifySchedule, tasks["notify"]); err != nil {
		logger.Error("register notify", "error", err)
		return 1
	}
	if err := sched.Add("purge", cfg.PurgeSchedule, tasks["purge"]); err != nil {
		logger.Error("register purge", "error", err)
		return 1
	}

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

	sched.Start(ctx)
	<-ctx.Done()
	sched.Stop()
	return 0
}
