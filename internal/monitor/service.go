package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"queue-monitor/internal/config"
	"queue-monitor/internal/notify"
	"queue-monitor/internal/store"
	"queue-monitor/internal/telemetry"
)

const cutoffLayout = "2006-01-02 15:04:05"

// Settings is the part of the configuration the triggers consume.
type Settings struct {
	Disabled               bool
	LongJobInMinutes       int
	PurgeLogsOlderThanDays int
	Recipients             []string
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		Disabled:               cfg.Disabled,
		LongJobInMinutes:       cfg.LongJobInMinutes,
		PurgeLogsOlderThanDays: cfg.PurgeLogsOlderThanDays,
		Recipients:             cfg.Recipients(),
	}
}

// Service backs the notify and purge entry points.
type Service struct {
	detector *Detector
	purger   *Purger
	notifier *notify.Notifier
	settings Settings
	logger   *slog.Logger
}

func NewService(st store.LogStore, notifier *notify.Notifier, settings Settings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		detector: NewDetector(st),
		purger:   NewPurger(st),
		notifier: notifier,
		settings: settings,
		logger:   logger,
	}
}

// WithClock overrides the clock of the detector and the purger.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.detector.now = now
	s.purger.now = now
	return s
}

// NotifyAboutLongRunningJobs alerts the recipients when jobs have been
// stuck in seen or start for longJobInMinutes or more. It returns the number
// of stuck jobs found.
func (s *Service) NotifyAboutLongRunningJobs(ctx context.Context, longJobInMinutes int, recipients []string) (int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "monitor.notify_long_running_jobs")
	defer span.End()

	stuck, err := s.detector.Detect(ctx, longJobInMinutes)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("detect stuck jobs: %w", err)
	}
	span.SetAttributes(attribute.Int("stuck_jobs", len(stuck)))
	telemetry.StuckJobsGauge.Set(float64(len(stuck)))

	return len(stuck), s.notifier.Notify(ctx, stuck, recipients, time.Duration(longJobInMinutes)*time.Minute)
}

// RunNotify is the notify trigger.
func (s *Service) RunNotify(ctx context.Context) error {
	stuck, err := s.NotifyAboutLongRunningJobs(ctx, s.settings.LongJobInMinutes, s.settings.Recipients)
	if err != nil {
		s.logger.Error("failed to send queue stuck notifications", "stuck_jobs", stuck, "error", err)
		return err
	}
	s.logger.Info(fmt.Sprintf("found %d jobs stuck in queue for %d minutes or more", stuck, s.settings.LongJobInMinutes),
		"stuck_jobs", stuck,
		"long_job_in_minutes", s.settings.LongJobInMinutes,
	)
	return nil
}

// RunPurge is the purge trigger. A disabled monitor purges nothing and
// reports success.
func (s *Service) RunPurge(ctx context.Context) (int64, error) {
	if s.settings.Disabled {
		s.logger.Info("logs were not purged because queue monitor is disabled")
		return 0, nil
	}

	days := s.settings.PurgeLogsOlderThanDays
	cutoff := s.purger.PurgeToDate(days).Format(cutoffLayout)
	s.logger.Info(fmt.Sprintf("purging queue logs older than %s UTC", cutoff))

	deleted, err := s.purger.Purge(ctx, days)
	if err != nil {
		s.logger.Error("failed purging queue logs", "error", err)
		return 0, err
	}
	s.logger.Info(fmt.Sprintf("purged %d queue messages older than %s UTC", deleted, cutoff), "deleted", deleted)
	return deleted, nil
}
