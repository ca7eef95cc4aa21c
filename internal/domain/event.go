package domain

import "time"

// EventKind names an event raised by a successful operation.
type EventKind string

const (
	EvtTaskPosted        EventKind = "TaskPosted"
	EvtBidPlaced         EventKind = "BidPlaced"
	EvtTaskAssigned      EventKind = "TaskAssigned"
	EvtWorkSubmitted     EventKind = "WorkSubmitted"
	EvtWorkApproved      EventKind = "WorkApproved"
	EvtTaskDisputed      EventKind = "TaskDisputed"
	EvtDisputeResolved   EventKind = "DisputeResolved"
	EvtTaskCancelled     EventKind = "TaskCancelled"
	EvtReviewSubmitted   EventKind = "ReviewSubmitted"
	EvtReputationSlashed EventKind = "ReputationSlashed"
	EvtReputationUpdated EventKind = "ReputationUpdated"
)

// Event is a committed event, stamped by the host with the sequence number
// of the operation that raised it.
type Event struct {
	ID      string         `json:"id"`
	Seq     uint64         `json:"seq"`
	Index   int            `json:"index"` // position within the operation
	Kind    EventKind      `json:"kind"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}
