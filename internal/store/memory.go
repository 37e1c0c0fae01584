package store

import (
	"context"
	"sync"
	"time"

	"queue-monitor/internal/models"
)

var _ LogStore = (*Memory)(nil)

// Memory keeps the log in process. It backs tests and dry runs.
type Memory struct {
	mu   sync.RWMutex
	rows []models.LogRecord
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// WithClock overrides the write-time clock.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Append(ctx context.Context, rec models.LogRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", persistenceErr("append", err)
	}
	rec, err := prepare(rec, m.now)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.rows = append(m.rows, rec)
	m.mu.Unlock()
	return rec.ID, nil
}

func (m *Memory) LastEventPerMessage(ctx context.Context) ([]models.LastEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, persistenceErr("last event per message", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate(m.rows), nil
}

func (m *Memory) StuckJobs(ctx context.Context, olderThan time.Time) ([]models.LastEvent, error) {
	all, err := m.LastEventPerMessage(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.LastEvent, 0)
	for _, le := range all {
		if le.Stuck(olderThan) {
			out = append(out, le)
		}
	}
	return out, nil
}

func (m *Memory) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, persistenceErr("purge", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var deleted int64
	for _, r := range m.rows {
		if !r.MessageTimestamp.After(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return deleted, nil
}

func (m *Memory) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, persistenceErr("count", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rows)), nil
}

// Records returns a copy of the stored rows in insertion order.
func (m *Memory) Records() []models.LogRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.LogRecord, len(m.rows))
	copy(out, m.rows)
	return out
}

func (m *Memory) Close() error { return nil }
