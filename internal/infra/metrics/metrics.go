// Package metrics provides Prometheus metrics for clawmarket.
// Counters, gauges, and histograms for extrinsic dispatch, the task
// lifecycle, escrow, reputation, and event delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Dispatch ───────────────────────────────────────────────────────────────

// Extrinsics counts dispatched calls by method and outcome (ok|error).
var Extrinsics = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clawmarket",
	Name:      "extrinsics_total",
	Help:      "Total dispatched calls by method and outcome.",
}, []string{"method", "outcome"})

// DispatchLatency tracks time spent applying a call, journaling included.
var DispatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "clawmarket",
	Name:      "dispatch_latency_seconds",
	Help:      "Call dispatch duration in seconds.",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
}, []string{"method"})

// LastSeq tracks the sequence number of the last applied call.
var LastSeq = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "clawmarket",
	Name:      "last_seq",
	Help:      "Sequence number of the last applied call.",
})

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TaskTransitions counts task status transitions by target status.
var TaskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clawmarket",
	Name:      "task_transitions_total",
	Help:      "Total task status transitions by resulting status.",
}, []string{"status"})

// TasksPosted tracks total tasks ever posted.
var TasksPosted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "clawmarket",
	Name:      "tasks_posted_total",
	Help:      "Total tasks posted.",
})

// BidsPlaced tracks total bids placed, rebids included.
var BidsPlaced = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "clawmarket",
	Name:      "bids_placed_total",
	Help:      "Total bids placed.",
})

// ─── Escrow ─────────────────────────────────────────────────────────────────

// EscrowHeld tracks the currency currently reserved across all accounts.
var EscrowHeld = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "clawmarket",
	Name:      "escrow_held",
	Help:      "Currency currently reserved as task escrow.",
})

// EscrowReleased counts escrow leaving reservation, by path (paid|refunded).
var EscrowReleased = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clawmarket",
	Name:      "escrow_released_total",
	Help:      "Total escrow released, by path.",
}, []string{"path"})

// ─── Reputation ─────────────────────────────────────────────────────────────

// ReputationAdjustments counts score-changing events by kind.
var ReputationAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clawmarket",
	Name:      "reputation_adjustments_total",
	Help:      "Total reputation adjustments by kind.",
}, []string{"kind"})

// ─── Events ─────────────────────────────────────────────────────────────────

// EventsPublished counts committed events by publisher and outcome.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "clawmarket",
	Name:      "events_published_total",
	Help:      "Total events handed to publishers, by publisher and outcome.",
}, []string{"publisher", "outcome"})

// SSESubscribers tracks live event stream subscribers.
var SSESubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "clawmarket",
	Name:      "sse_subscribers",
	Help:      "Number of connected live event subscribers.",
})

// PublisherBreakerState reports each guarded publisher's circuit breaker
// (0 closed, 1 open, 2 half-open).
var PublisherBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "clawmarket",
	Name:      "publisher_breaker_state",
	Help:      "Circuit breaker state per event publisher.",
}, []string{"publisher"})
