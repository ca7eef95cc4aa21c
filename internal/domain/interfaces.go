package domain

// ─── Capability Interfaces ──────────────────────────────────────────────────
// These interfaces define boundaries between components.
// The task market depends on them; the reputation ledger and the currency
// ledger implement them.

// ReputationManager is the narrow surface the task market uses to affect
// reputation state. Any provider satisfying it can be plugged in.
type ReputationManager interface {
	// OnTaskCompleted records a successful completion and the amount earned.
	// It does not change the score.
	OnTaskCompleted(worker AccountID, earned Balance)

	// OnTaskPosted records a posted task and the amount committed to it.
	OnTaskPosted(poster AccountID, spent Balance)

	// OnDisputeResolved rewards the winner and penalises the loser.
	OnDisputeResolved(winner, loser AccountID)

	// GetReputation returns the current score (initial score if unseen).
	GetReputation(account AccountID) uint32

	// MeetsMinimumReputation reports whether score >= threshold.
	MeetsMinimumReputation(account AccountID, threshold uint32) bool
}

// Currency is the balance ledger that holds escrow. Each method either
// succeeds completely or fails with ErrInsufficientBalance and changes nothing.
type Currency interface {
	Reserve(account AccountID, amount Balance) error
	Unreserve(account AccountID, amount Balance) error
	TransferFromReserved(from, to AccountID, amount Balance) error
}

// EventSink receives events raised by a successful operation.
type EventSink interface {
	Emit(kind EventKind, payload map[string]any)
}

// DiscardEvents is an EventSink that drops everything.
var DiscardEvents EventSink = discardSink{}

type discardSink struct{}

func (discardSink) Emit(EventKind, map[string]any) {}
