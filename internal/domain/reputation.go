package domain

// ─── Reputation ─────────────────────────────────────────────────────────────

const (
	// MaxScore is the upper bound of every reputation score.
	MaxScore uint32 = 10000

	// DisputeWinBonus is added to the winner of an adjudicated dispute.
	DisputeWinBonus uint32 = 200

	// DisputeLossPenalty is subtracted from the loser of an adjudicated dispute.
	DisputeLossPenalty uint32 = 500

	// RatingStep is the score delta per review star.
	RatingStep uint32 = 100
)

// ReputationRecord is the per-account reputation state. Counters only grow.
type ReputationRecord struct {
	Account               AccountID `json:"account"`
	Score                 uint32    `json:"score"`
	TotalTasksCompleted   uint32    `json:"total_tasks_completed"`
	SuccessfulCompletions uint32    `json:"successful_completions"`
	TotalTasksPosted      uint32    `json:"total_tasks_posted"`
	TotalEarned           Balance   `json:"total_earned"`
	TotalSpent            Balance   `json:"total_spent"`
	DisputesWon           uint32    `json:"disputes_won"`
	DisputesLost          uint32    `json:"disputes_lost"`
}

// HistoryKind classifies a reputation-affecting event.
type HistoryKind string

const (
	HistReview        HistoryKind = "review"
	HistSlash         HistoryKind = "slash"
	HistDisputeWon    HistoryKind = "dispute_won"
	HistDisputeLost   HistoryKind = "dispute_lost"
	HistTaskCompleted HistoryKind = "task_completed"
)

// HistoryEntry is one line of an account's capped reputation log.
type HistoryEntry struct {
	Seq          uint64      `json:"seq"`
	Kind         HistoryKind `json:"kind"`
	Delta        int64       `json:"delta"` // applied change after clamping
	ScoreAfter   uint32      `json:"score_after"`
	Counterparty AccountID   `json:"counterparty,omitempty"`
	TaskID       *TaskID     `json:"task_id,omitempty"`
	Reason       Text        `json:"reason,omitempty"`
}

// Review is one reviewer's rating of one reviewee. Resubmission overwrites.
type Review struct {
	Reviewer AccountID `json:"reviewer"`
	Reviewee AccountID `json:"reviewee"`
	Rating   uint8     `json:"rating"`
	Comment  Text      `json:"comment"`
	TaskID   TaskID    `json:"task_id"`
	Seq      uint64    `json:"seq"`
}
