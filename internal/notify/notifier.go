// Package notify sends the stuck job alert to operators.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"queue-monitor/internal/models"
	"queue-monitor/internal/telemetry"
)

const (
	Subject = "Emergency. There are jobs stuck in queue."

	bodyTemplate = "This is automated message about queue job stuck in queue engine. \n\n" +
		"There are %d jobs stuck in queue for the last %d minutes and more."
)

// Message is a plain text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer delivers a message. Implementations do not retry.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier turns a set of stuck jobs into a single alert email.
type Notifier struct {
	mailer  Mailer
	resolve func() (Mailer, error)
	logger  *slog.Logger
}

func NewNotifier(mailer Mailer, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{mailer: mailer, logger: logger}
}

// NewLazyNotifier builds the mailer with resolve the first time an alert has
// to go out, so transport settings are only checked when jobs are stuck.
func NewLazyNotifier(resolve func() (Mailer, error), logger *slog.Logger) *Notifier {
	n := NewNotifier(nil, logger)
	n.resolve = resolve
	return n
}

// Notify sends one alert listing the number of stuck jobs. Nothing is sent
// when stuck is empty. Recipients are validated up front and a single bad
// address aborts the whole call.
func (n *Notifier) Notify(ctx context.Context, stuck []models.LastEvent, recipients []string, threshold time.Duration) error {
	if len(stuck) == 0 {
		return nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "notify.stuck_jobs")
	defer span.End()
	span.SetAttributes(
		attribute.Int("stuck_jobs", len(stuck)),
		attribute.Int("recipients", len(recipients)),
	)

	if err := n.notify(ctx, stuck, recipients, threshold); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.NotificationFailures.Inc()
		return err
	}
	telemetry.NotificationsSent.Inc()
	return nil
}

func (n *Notifier) notify(ctx context.Context, stuck []models.LastEvent, recipients []string, threshold time.Duration) error {
	if len(recipients) == 0 {
		return fmt.Errorf("%w: missing recipients", models.ErrConfiguration)
	}
	if err := ValidateRecipients(recipients); err != nil {
		return err
	}
	if n.mailer == nil && n.resolve != nil {
		mailer, err := n.resolve()
		if err != nil {
			return err
		}
		n.mailer = mailer
	}
	if n.mailer == nil {
		return fmt.Errorf("%w: no mail transport", models.ErrConfiguration)
	}

	msg := Message{
		To:      recipients,
		Subject: Subject,
		Body:    fmt.Sprintf(bodyTemplate, len(stuck), int(threshold/time.Minute)),
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", models.ErrDelivery, err)
	}
	n.logger.Info("stuck job notification sent", "stuck_jobs", len(stuck), "recipients", len(recipients))
	return nil
}
