package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	RemindersSubmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "repeatme_reminders_submitted_total", Help: "Reminders created by submissions"})
	RateLimitRejects   = prometheus.NewCounter(prometheus.CounterOpts{Name: "repeatme_rate_limit_rejects_total", Help: "Requests rejected by the rate limiter"})
	RemindersClaimed   = prometheus.NewCounter(prometheus.CounterOpts{Name: "repeatme_reminders_claimed_total", Help: "Reminders claimed by dispatch cycles"})
	RemindersDelivered = prometheus.NewCounter(prometheus.CounterOpts{Name: "repeatme_reminders_delivered_total", Help: "Reminders finalized as sent"})
	RemindersFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "repeatme_reminders_failed_total", Help: "Reminders finalized as failed"})
	RemindersRetried   = prometheus.NewCounter(prometheus.CounterOpts{Name: "repeatme_reminders_retried_total", Help: "Deliveries left in flight for lease retry"})
	RemindersReclaimed = prometheus.NewCounter(prometheus.CounterOpts{Name: "repeatme_reminders_reclaimed_total", Help: "Claims of reminders whose lease expired"})
	DispatchErrors     = prometheus.NewCounter(prometheus.CounterOpts{Name: "repeatme_dispatch_cycle_errors_total", Help: "Dispatch cycles that failed"})
	DispatchDuration   = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "repeatme_dispatch_cycle_duration_seconds",
		Help:    "Duration of dispatch cycles",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			RemindersSubmitted,
			RateLimitRejects,
			RemindersClaimed,
			RemindersDelivered,
			RemindersFailed,
			RemindersRetried,
			RemindersReclaimed,
			DispatchErrors,
			DispatchDuration,
		)
	})
	return promhttp.Handler()
}
