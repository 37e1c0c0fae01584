package models

import (
	"fmt"
	"strings"
	"time"
)

// LogRecord is one observed lifecycle event of a queue message. Records are
// appended once and never updated.
type LogRecord struct {
	ID               string    `json:"id"`
	Created          time.Time `json:"created"`
	MessageID        string    `json:"message_id"`
	MessageTimestamp time.Time `json:"message_timestamp"`
	Event            Event     `json:"event"`
	Job              *string   `json:"job,omitempty"`
	Exception        *string   `json:"exception,omitempty"`
	Content          string    `json:"content"`
}

// LogRecordParams collects the inputs of NewLogRecord. Job and Exception are
// optional; Exception is only accepted on exception events.
type LogRecordParams struct {
	MessageID        string
	MessageTimestamp time.Time
	Event            Event
	Job              *string
	Exception        *string
	Content          string
}

// NewLogRecord validates p and builds a record. ID and Created are left
// empty; the store assigns them at write time.
func NewLogRecord(p LogRecordParams) (LogRecord, error) {
	rec := LogRecord{
		MessageID:        strings.TrimSpace(p.MessageID),
		MessageTimestamp: p.MessageTimestamp.UTC(),
		Event:            p.Event,
		Job:              p.Job,
		Exception:        p.Exception,
		Content:          p.Content,
	}
	if err := rec.Validate(); err != nil {
		return LogRecord{}, err
	}
	return rec, nil
}

// Validate checks the preconditions of an append.
func (r LogRecord) Validate() error {
	if strings.TrimSpace(r.MessageID) == "" {
		return fmt.Errorf("%w: missing message id", ErrValidation)
	}
	if r.MessageTimestamp.IsZero() {
		return fmt.Errorf("%w: missing message timestamp", ErrValidation)
	}
	if !r.Event.Valid() {
		return fmt.Errorf("%w: %w: rank %d", ErrValidation, ErrUnknownEventKind, int(r.Event))
	}
	if r.Exception != nil && r.Event != EventException {
		return fmt.Errorf("%w: exception set on %s event", ErrValidation, r.Event)
	}
	if r.Content == "" {
		return fmt.Errorf("%w: missing content", ErrValidation)
	}
	return nil
}

// LastEvent is the derived per-message view: the highest event rank recorded
// for a message and the latest write time among its rows.
type LastEvent struct {
	MessageID        string    `json:"message_id"`
	LastEvent        Event     `json:"last_event"`
	LastCreated      time.Time `json:"last_created"`
	MessageTimestamp time.Time `json:"message_timestamp"`
}

// Stuck reports whether the message is still running and its latest row was
// written at or before olderThan. Age is measured on the write time, not on
// the message timestamp.
func (l LastEvent) Stuck(olderThan time.Time) bool {
	return !l.LastEvent.IsTerminal() && l.LastEvent.Valid() && !l.LastCreated.After(olderThan)
}

// StringPtr returns nil for the empty string.
func StringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
