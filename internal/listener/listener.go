// Package listener turns lifecycle notifications from the queue runtime into
// log store writes.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"queue-monitor/internal/models"
	"queue-monitor/internal/store"
	"queue-monitor/internal/telemetry"
)

// Width of the job and exception columns.
const shortColumn = 255

// Handler records one notification already resolved to an event.
type Handler func(ctx context.Context, ev models.Event, n Notification) error

// Listener dispatches notifications to handlers keyed by event. Failures are
// logged and never returned to the queue runtime.
type Listener struct {
	store    store.LogStore
	logger   *slog.Logger
	handlers map[models.Event]Handler
}

func New(st store.LogStore, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{store: st, logger: logger}
	l.handlers = map[models.Event]Handler{
		models.EventSeen:      l.handleSeen,
		models.EventInvalid:   l.handleMessageEvent,
		models.EventStart:     l.handleMessageEvent,
		models.EventException: l.handleException,
		models.EventSuccess:   l.handleMessageEvent,
		models.EventReject:    l.handleMessageEvent,
		models.EventFailure:   l.handleMessageEvent,
	}
	return l
}

// Handle records n and swallows any failure after logging it.
func (l *Listener) Handle(ctx context.Context, n Notification) {
	if err := l.Dispatch(ctx, n); err != nil {
		l.logger.Warn("unable to handle queue monitoring message event",
			"event", n.Event,
			"reason", err.Error(),
		)
	}
}

// Dispatch records n and reports why it could not be recorded. Panics
// raised while handling are converted to errors.
func (l *Listener) Dispatch(ctx context.Context, n Notification) (err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "listener.dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("event", n.Event))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			telemetry.EventsDropped.WithLabelValues(dropReason(err)).Inc()
		}
	}()

	ev, err := models.ParseEvent(n.Event)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	handler, ok := l.handlers[ev]
	if !ok {
		return fmt.Errorf("%w: no handler for %s", models.ErrUnknownEventKind, ev)
	}
	if err := handler(ctx, ev, n); err != nil {
		return err
	}
	telemetry.EventsRecorded.WithLabelValues(ev.Name()).Inc()
	return nil
}

func (l *Listener) handleMessageEvent(ctx context.Context, ev models.Event, n Notification) error {
	msg, err := validateJobMessage(n.Message)
	if err != nil {
		return err
	}
	return l.storeEvent(ctx, ev, strings.Join(msg.Target, "::"), msg.Original, nil)
}

func (l *Listener) handleException(ctx context.Context, ev models.Event, n Notification) error {
	msg, err := validateJobMessage(n.Message)
	if err != nil {
		return err
	}
	if n.Exception == nil {
		return fmt.Errorf("%w: queue exception is null, ensure that the queue job is set up correctly", models.ErrValidation)
	}
	if strings.TrimSpace(n.Exception.Class) == "" {
		return fmt.Errorf("%w: queue exception has no class", models.ErrValidation)
	}
	return l.storeEvent(ctx, ev, strings.Join(msg.Target, "::"), msg.Original, n.Exception)
}

func (l *Listener) handleSeen(ctx context.Context, ev models.Event, n Notification) error {
	if n.QueueMessage == nil {
		return fmt.Errorf("%w: seen event without queue message", models.ErrValidation)
	}
	return l.storeEvent(ctx, ev, seenTarget(n.QueueMessage.Body), n.QueueMessage, nil)
}

func (l *Listener) storeEvent(ctx context.Context, ev models.Event, target string, msg *QueueMessage, exc *Exception) error {
	if msg.MessageID == nil {
		return fmt.Errorf("%w: missing message id in queue message", models.ErrValidation)
	}
	if msg.Timestamp == nil {
		return fmt.Errorf("%w: missing timestamp in queue message", models.ErrValidation)
	}
	body, err := content(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrValidation, err)
	}

	job := truncate(target, shortColumn)
	params := models.LogRecordParams{
		MessageID:        *msg.MessageID,
		MessageTimestamp: time.Unix(*msg.Timestamp, 0).UTC(),
		Event:            ev,
		Job:              &job,
		Content:          body,
	}
	if exc != nil {
		params.Exception = models.StringPtr(truncate(exc.Class, shortColumn))
	}
	rec, err := models.NewLogRecord(params)
	if err != nil {
		return err
	}
	if _, err := l.store.Append(ctx, rec); err != nil {
		return err
	}
	return nil
}

func validateJobMessage(msg *JobMessage) (*JobMessage, error) {
	if msg == nil || msg.Original == nil || msg.Original.MessageID == nil {
		return nil, fmt.Errorf("%w: message is not a job message, ensure that the queue job is set up correctly", models.ErrValidation)
	}
	return msg, nil
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, models.ErrUnknownEventKind):
		return "unknown_event"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}
