package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EventsRecorded       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "queue_monitor_events_recorded_total", Help: "Lifecycle events appended to the log"}, []string{"event"})
	EventsDropped        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "queue_monitor_events_dropped_total", Help: "Lifecycle notifications rejected by the listener"}, []string{"reason"})
	IngestRateLimited    = prometheus.NewCounter(prometheus.CounterOpts{Name: "queue_monitor_ingest_rate_limited_total", Help: "HTTP notifications rejected by the rate limiter"})
	StuckJobsGauge       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "queue_monitor_stuck_jobs", Help: "Stuck jobs found by the last detection run"})
	NotificationsSent    = prometheus.NewCounter(prometheus.CounterOpts{Name: "queue_monitor_notifications_sent_total", Help: "Stuck job alerts delivered"})
	NotificationFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "queue_monitor_notification_failures_total", Help: "Stuck job alerts that could not be sent"})
	LogsPurged           = prometheus.NewCounter(prometheus.CounterOpts{Name: "queue_monitor_logs_purged_total", Help: "Log rows deleted by the purger"})
	PendingEventsGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "queue_monitor_pending_events", Help: "Notifications waiting in the Redis events list"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EventsRecorded,
			EventsDropped,
			IngestRateLimited,
			StuckJobsGauge,
			NotificationsSent,
			NotificationFailures,
			LogsPurged,
			PendingEventsGauge,
		)
	})
	return promhttp.Handler()
}
