// Package domain holds the task market and reputation types.
// A Task is a unit of paid work that flows through the market:
// post → bid → assign → submit → approve (or dispute → resolve), or cancel.
package domain

// TaskID is the sequential identifier assigned to a posted task.
type TaskID = uint64

// TaskStatus tracks task lifecycle.
type TaskStatus string

const (
	TaskOpen      TaskStatus = "OPEN"
	TaskAssigned  TaskStatus = "ASSIGNED"
	TaskSubmitted TaskStatus = "SUBMITTED"
	TaskApproved  TaskStatus = "APPROVED"
	TaskDisputed  TaskStatus = "DISPUTED"
	TaskCancelled TaskStatus = "CANCELLED"
	TaskResolved  TaskStatus = "RESOLVED"
)

// AllTaskStatuses lists every status in lifecycle order.
var AllTaskStatuses = []TaskStatus{
	TaskOpen, TaskAssigned, TaskSubmitted, TaskApproved,
	TaskDisputed, TaskCancelled, TaskResolved,
}

// IsTerminal returns true once escrow has been fully consumed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskApproved || s == TaskCancelled || s == TaskResolved
}

// Task is a posted job. The reward stays reserved from the poster's balance
// until the task reaches a terminal status.
type Task struct {
	ID            TaskID     `json:"id"`
	Poster        AccountID  `json:"poster"`
	Title         Text       `json:"title"`
	Description   Text       `json:"description"`
	Reward        Balance    `json:"reward"`
	Deadline      uint64     `json:"deadline"` // informational only
	Status        TaskStatus `json:"status"`
	AssignedTo    *AccountID `json:"assigned_to,omitempty"`
	Submission    Text       `json:"submission,omitempty"`
	DisputeReason Text       `json:"dispute_reason,omitempty"`
}

// IsTerminal returns true if the task has reached a final state.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// IsParty reports whether account is the poster or the assignee.
func (t *Task) IsParty(account AccountID) bool {
	if account == t.Poster {
		return true
	}
	return t.AssignedTo != nil && *t.AssignedTo == account
}

// Clone returns a deep copy safe to hand to callers.
func (t *Task) Clone() Task {
	cp := *t
	cp.Title = cloneBytes(t.Title)
	cp.Description = cloneBytes(t.Description)
	cp.Submission = cloneBytes(t.Submission)
	cp.DisputeReason = cloneBytes(t.DisputeReason)
	if t.AssignedTo != nil {
		a := *t.AssignedTo
		cp.AssignedTo = &a
	}
	return cp
}

// Bid is a worker's offer on an open task. One per (task, bidder).
type Bid struct {
	TaskID   TaskID    `json:"task_id"`
	Bidder   AccountID `json:"bidder"`
	Amount   Balance   `json:"amount"`
	Proposal Text      `json:"proposal"`
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
