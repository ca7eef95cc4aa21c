package node

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/clawchain/clawmarket/internal/domain"
)

// Method names, as journaled and as exposed over the API.
const (
	MethodPostTask        = "post_task"
	MethodBidOnTask       = "bid_on_task"
	MethodAssignTask      = "assign_task"
	MethodSubmitWork      = "submit_work"
	MethodApproveWork     = "approve_work"
	MethodDisputeTask     = "dispute_task"
	MethodResolveDispute  = "resolve_dispute"
	MethodCancelTask      = "cancel_task"
	MethodSubmitReview    = "submit_review"
	MethodSlashReputation = "slash_reputation"
)

// Bytes is an opaque byte-string call argument. Its JSON form round-trips
// content that is not valid UTF-8 exactly.
type Bytes string

// MarshalJSON implements json.Marshaler.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return domain.EncodeTextJSON([]byte(b))
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	v, err := domain.DecodeTextJSON(data)
	if err != nil {
		return err
	}
	*b = Bytes(v)
	return nil
}

// Call is one state-changing operation. The concrete types below are the
// complete set the node accepts.
type Call interface {
	Method() string
}

type PostTask struct {
	Title       Bytes          `json:"title"`
	Description Bytes          `json:"description"`
	Reward      domain.Balance `json:"reward"`
	Deadline    uint64         `json:"deadline"`
}

type BidOnTask struct {
	TaskID   domain.TaskID  `json:"task_id"`
	Amount   domain.Balance `json:"amount"`
	Proposal Bytes          `json:"proposal"`
}

type AssignTask struct {
	TaskID domain.TaskID    `json:"task_id"`
	Bidder domain.AccountID `json:"bidder"`
}

type SubmitWork struct {
	TaskID domain.TaskID `json:"task_id"`
	Proof  Bytes         `json:"proof"`
}

type ApproveWork struct {
	TaskID domain.TaskID `json:"task_id"`
}

type DisputeTask struct {
	TaskID domain.TaskID `json:"task_id"`
	Reason Bytes         `json:"reason"`
}

type ResolveDispute struct {
	TaskID domain.TaskID    `json:"task_id"`
	Winner domain.AccountID `json:"winner"`
}

type CancelTask struct {
	TaskID domain.TaskID `json:"task_id"`
}

type SubmitReview struct {
	Reviewee domain.AccountID `json:"reviewee"`
	Rating   uint8            `json:"rating"`
	Comment  Bytes            `json:"comment"`
	TaskID   domain.TaskID    `json:"task_id"`
}

type SlashReputation struct {
	Target domain.AccountID `json:"target"`
	Amount uint32           `json:"amount"`
	Reason Bytes            `json:"reason"`
}

func (PostTask) Method() string        { return MethodPostTask }
func (BidOnTask) Method() string       { return MethodBidOnTask }
func (AssignTask) Method() string      { return MethodAssignTask }
func (SubmitWork) Method() string      { return MethodSubmitWork }
func (ApproveWork) Method() string     { return MethodApproveWork }
func (DisputeTask) Method() string     { return MethodDisputeTask }
func (ResolveDispute) Method() string  { return MethodResolveDispute }
func (CancelTask) Method() string      { return MethodCancelTask }
func (SubmitReview) Method() string    { return MethodSubmitReview }
func (SlashReputation) Method() string { return MethodSlashReputation }

// Methods lists every accepted method name.
var Methods = []string{
	MethodPostTask, MethodBidOnTask, MethodAssignTask, MethodSubmitWork,
	MethodApproveWork, MethodDisputeTask, MethodResolveDispute, MethodCancelTask,
	MethodSubmitReview, MethodSlashReputation,
}

// NewCall returns a zero value of the call type for method.
func NewCall(method string) (Call, error) {
	switch method {
	case MethodPostTask:
		return &PostTask{}, nil
	case MethodBidOnTask:
		return &BidOnTask{}, nil
	case MethodAssignTask:
		return &AssignTask{}, nil
	case MethodSubmitWork:
		return &SubmitWork{}, nil
	case MethodApproveWork:
		return &ApproveWork{}, nil
	case MethodDisputeTask:
		return &DisputeTask{}, nil
	case MethodResolveDispute:
		return &ResolveDispute{}, nil
	case MethodCancelTask:
		return &CancelTask{}, nil
	case MethodSubmitReview:
		return &SubmitReview{}, nil
	case MethodSlashReputation:
		return &SlashReputation{}, nil
	}
	return nil, fmt.Errorf("%q: %w", method, domain.ErrUnknownCall)
}

// DecodeCall parses JSON arguments for method. Unknown fields are rejected.
func DecodeCall(method string, args []byte) (Call, error) {
	c, err := NewCall(method)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	return c, nil
}

// EncodeCall returns the JSON form journaled for c.
func EncodeCall(c Call) (json.RawMessage, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Method(), err)
	}
	return b, nil
}
