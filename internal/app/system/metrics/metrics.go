// internal/app/system/metrics/metrics.go

// Package metrics exposes Prometheus counters for the renewal engine and
// the reconciliation sweep, served at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Redemptions counts successful code redemptions.
	Redemptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewhub_redemptions_total",
		Help: "Successful renewal code redemptions.",
	})

	// RedemptionFailures counts rejected redemptions by reason
	// (not_found, exhausted, expired, error).
	RedemptionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "renewhub_redemption_failures_total",
		Help: "Rejected renewal code redemptions by reason.",
	}, []string{"reason"})

	// RemindersSent counts expiry reminders delivered to groups.
	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewhub_reminders_sent_total",
		Help: "Expiry reminders delivered to groups.",
	})

	// GroupsLeft counts groups departed after their membership expired.
	GroupsLeft = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewhub_groups_left_total",
		Help: "Groups departed after membership expiry.",
	})

	// SweepRuns counts completed reconciliation sweeps.
	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewhub_sweep_runs_total",
		Help: "Completed reconciliation sweeps.",
	})

	// SweepRecordErrors counts per-record failures inside sweeps.
	SweepRecordErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "renewhub_sweep_record_errors_total",
		Help: "Per-record failures during reconciliation sweeps.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
