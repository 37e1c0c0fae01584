package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"queue-monitor/internal/config"
	"queue-monitor/internal/models"
)

const table = "queue_monitoring_logs"

// LogStore persists lifecycle events and derives the last event per message.
// Rows are only ever appended or bulk deleted.
type LogStore interface {
	// Append validates and inserts one record, returning its id.
	Append(ctx context.Context, rec models.LogRecord) (string, error)
	// LastEventPerMessage groups rows by message id and returns the highest
	// event rank and the latest write time of each group.
	LastEventPerMessage(ctx context.Context) ([]models.LastEvent, error)
	// StuckJobs narrows LastEventPerMessage to groups whose last event is
	// non-terminal and whose latest write time is at or before olderThan.
	StuckJobs(ctx context.Context, olderThan time.Time) ([]models.LastEvent, error)
	// Purge deletes every row whose message timestamp is at or before cutoff
	// in a single statement and returns the number of deleted rows.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
	// Count returns the number of stored rows.
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Open connects the backend selected by cfg.StoreDriver and applies its
// migrations.
func Open(ctx context.Context, cfg config.Config) (LogStore, error) {
	switch cfg.StoreDriver {
	case "postgres", "":
		st, err := NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := st.RunMigrations(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return st, nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", models.ErrConfiguration, cfg.StoreDriver)
	}
}

// prepare validates rec and assigns the write-time fields. Any id or
// created value set by the caller is replaced.
func prepare(rec models.LogRecord, now func() time.Time) (models.LogRecord, error) {
	if err := rec.Validate(); err != nil {
		return models.LogRecord{}, err
	}
	rec.ID = uuid.New().String()
	rec.Created = now().UTC().Truncate(time.Microsecond)
	rec.MessageTimestamp = rec.MessageTimestamp.UTC().Truncate(time.Microsecond)
	return rec, nil
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrPersistence, op, err)
}

// aggregate computes the last-event view over an in-memory row set. Max
// event and max created are taken independently within each group.
func aggregate(rows []models.LogRecord) []models.LastEvent {
	groups := make(map[string]*models.LastEvent)
	for _, r := range rows {
		g, ok := groups[r.MessageID]
		if !ok {
			groups[r.MessageID] = &models.LastEvent{
				MessageID:        r.MessageID,
				LastEvent:        r.Event,
				LastCreated:      r.Created,
				MessageTimestamp: r.MessageTimestamp,
			}
			continue
		}
		if r.Event > g.LastEvent {
			g.LastEvent = r.Event
		}
		if r.Created.After(g.LastCreated) {
			g.LastCreated = r.Created
		}
		if r.MessageTimestamp.After(g.MessageTimestamp) {
			g.MessageTimestamp = r.MessageTimestamp
		}
	}

	out := make([]models.LastEvent, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	return out
}
