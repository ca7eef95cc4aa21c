package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency. Every operation that
// fails returns one of these (possibly wrapped) and leaves state untouched.

var (
	// Origin errors
	ErrBadOrigin = errors.New("bad origin: operation requires a different caller kind")

	// Task market validation errors
	ErrRewardTooLow       = errors.New("reward below minimum task reward")
	ErrTitleTooLong       = errors.New("title exceeds maximum length")
	ErrDescriptionTooLong = errors.New("description exceeds maximum length")
	ErrProposalTooLong    = errors.New("proposal exceeds maximum length")
	ErrReasonTooLong      = errors.New("reason exceeds maximum length")
	ErrProofTooLong       = errors.New("submission proof exceeds maximum length")
	ErrTooManyActiveTasks = errors.New("account has too many active tasks")
	ErrTooManyBids        = errors.New("task has reached maximum bid count")

	// Task market lookup errors
	ErrTaskNotFound = errors.New("task not found")
	ErrBidNotFound  = errors.New("bid not found")

	// Task market permission errors
	ErrCannotBidOnOwnTask = errors.New("cannot bid on own task")
	ErrNotPoster          = errors.New("caller is not the task poster")
	ErrNotAssignee        = errors.New("caller is not the task assignee")
	ErrNotParty           = errors.New("caller is neither poster nor assignee")
	ErrInvalidWinner      = errors.New("dispute winner must be the poster or the assignee")

	// Task market state errors
	ErrInvalidTaskStatus = errors.New("invalid task status for this operation")

	// Reputation errors
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrSelfReview       = errors.New("cannot review yourself")
	ErrCommentTooLong   = errors.New("comment exceeds maximum length")
	ErrReputationTooLow = errors.New("reputation score below required threshold")

	// Currency errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrZeroAmount          = errors.New("amount must be positive")

	// Host errors
	ErrUnknownCall = errors.New("unknown call")
)

// errorCodes gives each sentinel a stable wire name so remote callers can
// recover it with errors.Is.
var errorCodes = map[error]string{
	ErrBadOrigin:           "bad_origin",
	ErrRewardTooLow:        "reward_too_low",
	ErrTitleTooLong:        "title_too_long",
	ErrDescriptionTooLong:  "description_too_long",
	ErrProposalTooLong:     "proposal_too_long",
	ErrReasonTooLong:       "reason_too_long",
	ErrProofTooLong:        "proof_too_long",
	ErrTooManyActiveTasks:  "too_many_active_tasks",
	ErrTooManyBids:         "too_many_bids",
	ErrTaskNotFound:        "task_not_found",
	ErrBidNotFound:         "bid_not_found",
	ErrCannotBidOnOwnTask:  "cannot_bid_on_own_task",
	ErrNotPoster:           "not_poster",
	ErrNotAssignee:         "not_assignee",
	ErrNotParty:            "not_party",
	ErrInvalidWinner:       "invalid_winner",
	ErrInvalidTaskStatus:   "invalid_task_status",
	ErrInvalidRating:       "invalid_rating",
	ErrSelfReview:          "self_review",
	ErrCommentTooLong:      "comment_too_long",
	ErrReputationTooLow:    "reputation_too_low",
	ErrInsufficientBalance: "insufficient_balance",
	ErrZeroAmount:          "zero_amount",
	ErrUnknownCall:         "unknown_call",
}

// ErrorCode returns the wire name of the sentinel err wraps, or "" if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for sentinel, code := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// ErrorForCode is the inverse of ErrorCode.
func ErrorForCode(code string) (error, bool) {
	for sentinel, c := range errorCodes {
		if c == code {
			return sentinel, true
		}
	}
	return nil, false
}
