package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestDispatchMetrics_Registered(t *testing.T) {
	Extrinsics.WithLabelValues("post_task", "ok").Inc()
	DispatchLatency.WithLabelValues("post_task").Observe(0.002)
	LastSeq.Set(1)

	names := gatheredNames(t)
	for _, name := range []string{
		"clawmarket_extrinsics_total",
		"clawmarket_dispatch_latency_seconds",
		"clawmarket_last_seq",
	} {
		if !names[name] {
			t.Errorf("%s not found in gathered metrics", name)
		}
	}
}

func TestMarketMetrics_Registered(t *testing.T) {
	TaskTransitions.WithLabelValues("OPEN").Inc()
	TasksPosted.Inc()
	BidsPlaced.Inc()
	EscrowHeld.Set(1000)
	EscrowReleased.WithLabelValues("paid").Add(1000)
	ReputationAdjustments.WithLabelValues("review").Inc()
	EventsPublished.WithLabelValues("hub", "ok").Inc()
	SSESubscribers.Set(0)

	names := gatheredNames(t)
	for _, name := range []string{
		"clawmarket_task_transitions_total",
		"clawmarket_tasks_posted_total",
		"clawmarket_bids_placed_total",
		"clawmarket_escrow_held",
		"clawmarket_escrow_released_total",
		"clawmarket_reputation_adjustments_total",
		"clawmarket_events_published_total",
		"clawmarket_sse_subscribers",
	} {
		if !names[name] {
			t.Errorf("%s not found in gathered metrics", name)
		}
	}
}
