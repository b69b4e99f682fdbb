// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RepairRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clarify_repair_requests_total",
			Help: "Total number of repair requests by path and response status",
		},
		[]string{"path", "status"},
	)

	RepairTier = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clarify_repair_tier_total",
			Help: "Successful repairs by the tier that produced them",
		},
		[]string{"tier"},
	)

	RepairFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clarify_repair_failures_total",
			Help: "Repairs that failed after the fallback tier",
		},
		[]string{"reason"},
	)

	RepairDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clarify_repair_duration_seconds",
			Help:    "Time spent inside the repair pipeline",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"tier"},
	)

	AccessDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clarify_access_denied_total",
			Help: "Metered requests rejected by the access gate",
		},
		[]string{"reason"},
	)

	LedgerWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clarify_ledger_writes_total",
			Help: "Credit ledger writes by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clarify_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)
