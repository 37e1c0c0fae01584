// Package monitor finds stuck jobs and trims the lifecycle log.
package monitor

import (
	"context"
	"time"

	"queue-monitor/internal/models"
	"queue-monitor/internal/store"
)

// Detector finds messages whose last event is still running.
type Detector struct {
	store store.LogStore
	now   func() time.Time
}

func NewDetector(st store.LogStore) *Detector {
	return &Detector{store: st, now: time.Now}
}

// Detect returns the jobs stuck for at least thresholdMinutes as of now.
func (d *Detector) Detect(ctx context.Context, thresholdMinutes int) ([]models.LastEvent, error) {
	return d.DetectAt(ctx, d.now(), thresholdMinutes)
}

// DetectAt is Detect with an explicit reference time.
func (d *Detector) DetectAt(ctx context.Context, now time.Time, thresholdMinutes int) ([]models.LastEvent, error) {
	olderThan := now.UTC().Add(-time.Duration(thresholdMinutes) * time.Minute)
	return d.store.StuckJobs(ctx, olderThan)
}
