// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Discovery metrics
	TokensDiscovered *prometheus.CounterVec
	FeedEvents       *prometheus.CounterVec
	InvalidAddresses prometheus.Counter

	// Polling metrics
	MigrationChecks     *prometheus.CounterVec
	ThresholdCrossings  prometheus.Counter
	TrackedTokens       prometheus.Gauge
	MigrationCheckError *prometheus.CounterVec

	// Execution metrics
	BuyOutcomes    *prometheus.CounterVec
	SellOutcomes   *prometheus.CounterVec
	SellReplans    prometheus.Counter
	ReservedCycles prometheus.Counter
	VenueLatency   *prometheus.HistogramVec

	// Timer metrics
	ActionsArmed     prometheus.Counter
	ActionsFired     prometheus.Counter
	ActionsResolved  prometheus.Counter
	ActionsCancelled prometheus.Counter

	// Reconcile metrics
	RedrivenTokens    prometheus.Counter
	RedrivenActions   prometheus.Counter
	StalePositions    *prometheus.GaugeVec
	ReconcileDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "migration_sniper"
	}

	return &Metrics{
		TokensDiscovered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "tokens_discovered_total",
			Help:      "New tokens entered into tracking, by platform",
		}, []string{"platform"}),
		FeedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "feed_events_total",
			Help:      "Announcements received from websocket feeds, by platform",
		}, []string{"platform"}),
		InvalidAddresses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "invalid_addresses_total",
			Help:      "Feed entries dropped for failing address validation",
		}),

		MigrationChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "migration_checks_total",
			Help:      "Migration status checks performed, by platform",
		}, []string{"platform"}),
		ThresholdCrossings: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "threshold_crossings_total",
			Help:      "Tokens that crossed the buy threshold",
		}),
		TrackedTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "tracked_tokens",
			Help:      "Tokens currently in TRACKING state",
		}),
		MigrationCheckError: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "migration_check_errors_total",
			Help:      "Failed migration status checks, by platform",
		}, []string{"platform"}),

		BuyOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "buy_outcomes_total",
			Help:      "Buy attempts by venue outcome",
		}, []string{"outcome"}),
		SellOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sell_outcomes_total",
			Help:      "Sell attempts by venue outcome",
		}, []string{"outcome"}),
		SellReplans: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sell_replans_total",
			Help:      "Rejected sells rescheduled by the exit policy",
		}),
		ReservedCycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "reserved_cycles_total",
			Help:      "Position cycles reserved for buy fan-out",
		}),
		VenueLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "venue_latency_seconds",
			Help:      "Venue execution call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform", "side"}),

		ActionsArmed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timer",
			Name:      "actions_armed_total",
			Help:      "Durable actions persisted",
		}),
		ActionsFired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timer",
			Name:      "actions_fired_total",
			Help:      "Durable actions fired",
		}),
		ActionsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timer",
			Name:      "actions_resolved_total",
			Help:      "Fired actions whose outcome settled",
		}),
		ActionsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "timer",
			Name:      "actions_cancelled_total",
			Help:      "Durable actions cancelled before firing",
		}),

		RedrivenTokens: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "redriven_tokens_total",
			Help:      "Crossed tokens re-dispatched by the reconcile scan",
		}),
		RedrivenActions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "redriven_actions_total",
			Help:      "Fired-but-unresolved actions re-dispatched",
		}),
		StalePositions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "stale_positions",
			Help:      "Positions stuck in a non-terminal state past the cutoff",
		}, []string{"state"}),
		ReconcileDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "scan_duration_seconds",
			Help:      "Reconcile scan duration",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
