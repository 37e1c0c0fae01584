package monitor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"queue-monitor/internal/store"
	"queue-monitor/internal/telemetry"
)

// Purger deletes log rows past the retention window.
type Purger struct {
	store store.LogStore
	now   func() time.Time
}

func NewPurger(st store.LogStore) *Purger {
	return &Purger{store: st, now: time.Now}
}

// PurgeToDate is the inclusive retention cutoff: daysOld days before now,
// moved to the last microsecond of that UTC day.
func PurgeToDate(now time.Time, daysOld int) time.Time {
	day := now.UTC().AddDate(0, 0, -daysOld)
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 999999000, time.UTC)
}

func (p *Purger) PurgeToDate(daysOld int) time.Time {
	return PurgeToDate(p.now(), daysOld)
}

// Purge deletes every row whose message timestamp falls on or before the
// cutoff day and returns the number of deleted rows.
func (p *Purger) Purge(ctx context.Context, daysOld int) (int64, error) {
	cutoff := p.PurgeToDate(daysOld)

	ctx, span := telemetry.Tracer().Start(ctx, "monitor.purge")
	defer span.End()
	span.SetAttributes(attribute.String("cutoff", cutoff.Format(time.RFC3339Nano)))

	deleted, err := p.store.Purge(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("deleted", deleted))
	telemetry.LogsPurged.Add(float64(deleted))
	return deleted, nil
}
