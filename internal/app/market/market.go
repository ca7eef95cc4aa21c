// Package market implements the task market: task lifecycle, bids, and
// escrow orchestration.
//
// How a task moves through the market:
//  1. A poster posts a task; the reward is reserved from their balance
//  2. Workers bid while the task is Open
//  3. The poster assigns one bidder; the task becomes Assigned
//  4. The worker submits proof of work; the task becomes Submitted
//  5. The poster approves (reward paid to the worker) or either party
//     disputes, and root resolves the dispute (see dispute.go)
//  6. An Open task can be cancelled, refunding the escrow
//
// Every guard is checked before anything is mutated. The only fallible
// collaborator call (the currency ledger) is made before market storage
// changes, and reputation callbacks cannot fail, so a rejected operation
// leaves no trace.
package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/infra/metrics"
)

// Market owns task and bid records.
type Market struct {
	mu       sync.RWMutex
	cfg      Config
	rep      domain.ReputationManager
	currency domain.Currency
	events   domain.EventSink

	tasks    map[domain.TaskID]*domain.Task
	bids     map[domain.TaskID]map[domain.AccountID]*domain.Bid
	bidOrder map[domain.TaskID][]domain.AccountID
	active   map[domain.AccountID]int
	nextID   domain.TaskID
	escrow   domain.Balance
}

// New creates a market backed by the given reputation provider and currency.
func New(cfg Config, rep domain.ReputationManager, currency domain.Currency) *Market {
	return &Market{
		cfg:      cfg,
		rep:      rep,
		currency: currency,
		events:   domain.DiscardEvents,
		tasks:    make(map[domain.TaskID]*domain.Task),
		bids:     make(map[domain.TaskID]map[domain.AccountID]*domain.Bid),
		bidOrder: make(map[domain.TaskID][]domain.AccountID),
		active:   make(map[domain.AccountID]int),
	}
}

// SetEventSink routes events raised by successful operations.
func (m *Market) SetEventSink(sink domain.EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sink == nil {
		sink = domain.DiscardEvents
	}
	m.events = sink
}

// ─── Extrinsics ─────────────────────────────────────────────────────────────

// PostTask creates an Open task and reserves reward from the caller.
func (m *Market) PostTask(origin domain.Origin, title, description []byte, reward domain.Balance, deadline uint64) (domain.TaskID, error) {
	poster, err := origin.Signer()
	if err != nil {
		return 0, err
	}
	if reward == 0 || reward < m.cfg.MinTaskReward {
		return 0, fmt.Errorf("reward %d < %d: %w", reward, m.cfg.MinTaskReward, domain.ErrRewardTooLow)
	}
	if len(title) > m.cfg.MaxTitleLength {
		return 0, fmt.Errorf("title length %d > %d: %w", len(title), m.cfg.MaxTitleLength, domain.ErrTitleTooLong)
	}
	if len(description) > m.cfg.MaxDescriptionLength {
		return 0, fmt.Errorf("description length %d > %d: %w", len(description), m.cfg.MaxDescriptionLength, domain.ErrDescriptionTooLong)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active[poster] >= m.cfg.MaxActiveTasksPerAccount {
		return 0, fmt.Errorf("%s has %d active tasks: %w", poster, m.active[poster], domain.ErrTooManyActiveTasks)
	}
	if err := m.currency.Reserve(poster, reward); err != nil {
		return 0, fmt.Errorf("reserve escrow: %w", err)
	}

	id := m.nextID
	m.nextID++
	m.tasks[id] = &domain.Task{
		ID:          id,
		Poster:      poster,
		Title:       append([]byte(nil), title...),
		Description: append([]byte(nil), description...),
		Reward:      reward,
		Deadline:    deadline,
		Status:      domain.TaskOpen,
	}
	m.active[poster]++
	m.escrow += reward

	m.rep.OnTaskPosted(poster, reward)

	m.events.Emit(domain.EvtTaskPosted, map[string]any{
		"task_id": id,
		"poster":  poster,
		"reward":  reward,
	})
	metrics.TasksPosted.Inc()
	metrics.TaskTransitions.WithLabelValues(string(domain.TaskOpen)).Inc()
	metrics.EscrowHeld.Set(float64(m.escrow))
	return id, nil
}

// BidOnTask records or replaces the caller's bid on an Open task.
func (m *Market) BidOnTask(origin domain.Origin, id domain.TaskID, amount domain.Balance, proposal []byte) error {
	bidder, err := origin.Signer()
	if err != nil {
		return err
	}
	if len(proposal) > m.cfg.MaxProposalLength {
		return fmt.Errorf("proposal length %d > %d: %w", len(proposal), m.cfg.MaxProposalLength, domain.ErrProposalTooLong)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.task(id)
	if err != nil {
		return err
	}
	if task.Status != domain.TaskOpen {
		return statusErr(task, domain.TaskOpen)
	}
	if task.Poster == bidder {
		return domain.ErrCannotBidOnOwnTask
	}

	taskBids := m.bids[id]
	_, rebid := taskBids[bidder]
	if !rebid && len(taskBids) >= m.cfg.MaxBidsPerTask {
		return fmt.Errorf("task %d has %d bids: %w", id, len(taskBids), domain.ErrTooManyBids)
	}

	if taskBids == nil {
		taskBids = make(map[domain.AccountID]*domain.Bid)
		m.bids[id] = taskBids
	}
	taskBids[bidder] = &domain.Bid{
		TaskID:   id,
		Bidder:   bidder,
		Amount:   amount,
		Proposal: append([]byte(nil), proposal...),
	}
	if !rebid {
		m.bidOrder[id] = append(m.bidOrder[id], bidder)
	}

	m.events.Emit(domain.EvtBidPlaced, map[string]any{
		"task_id": id,
		"bidder":  bidder,
		"amount":  amount,
	})
	metrics.BidsPlaced.Inc()
	return nil
}

// AssignTask hands an Open task to one of its bidders.
func (m *Market) AssignTask(origin domain.Origin, id domain.TaskID, bidder domain.AccountID) error {
	caller, err := origin.Signer()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.task(id)
	if err != nil {
		return err
	}
	if task.Poster != caller {
		return domain.ErrNotPoster
	}
	if task.Status != domain.TaskOpen {
		return statusErr(task, domain.TaskOpen)
	}
	if _, ok := m.bids[id][bidder]; !ok {
		return fmt.Errorf("task %d bidder %s: %w", id, bidder, domain.ErrBidNotFound)
	}

	worker := bidder
	task.AssignedTo = &worker
	m.transition(task, domain.TaskAssigned)

	m.events.Emit(domain.EvtTaskAssigned, map[string]any{
		"task_id": id,
		"worker":  worker,
	})
	return nil
}

// SubmitWork attaches the assignee's proof of work.
func (m *Market) SubmitWork(origin domain.Origin, id domain.TaskID, proof []byte) error {
	caller, err := origin.Signer()
	if err != nil {
		return err
	}
	if len(proof) > m.cfg.MaxProofLength {
		return fmt.Errorf("proof length %d > %d: %w", len(proof), m.cfg.MaxProofLength, domain.ErrProofTooLong)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.task(id)
	if err != nil {
		return err
	}
	if task.AssignedTo == nil || *task.AssignedTo != caller {
		return domain.ErrNotAssignee
	}
	if task.Status != domain.TaskAssigned {
		return statusErr(task, domain.TaskAssigned)
	}

	task.Submission = append([]byte(nil), proof...)
	m.transition(task, domain.TaskSubmitted)

	m.events.Emit(domain.EvtWorkSubmitted, map[string]any{
		"task_id": id,
		"worker":  caller,
	})
	return nil
}

// ApproveWork pays the full posted reward from escrow to the worker.
func (m *Market) ApproveWork(origin domain.Origin, id domain.TaskID) error {
	caller, err := origin.Signer()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.task(id)
	if err != nil {
		return err
	}
	if task.Poster != caller {
		return domain.ErrNotPoster
	}
	if task.Status != domain.TaskSubmitted {
		return statusErr(task, domain.TaskSubmitted)
	}
	worker := *task.AssignedTo

	if err := m.currency.TransferFromReserved(task.Poster, worker, task.Reward); err != nil {
		return fmt.Errorf("pay worker: %w", err)
	}

	m.transition(task, domain.TaskApproved)
	m.release(task, "paid")
	m.rep.OnTaskCompleted(worker, task.Reward)

	m.events.Emit(domain.EvtWorkApproved, map[string]any{
		"task_id": id,
		"worker":  worker,
		"reward":  task.Reward,
	})
	return nil
}

// DisputeTask escalates a Submitted task. Either party may dispute.
func (m *Market) DisputeTask(origin domain.Origin, id domain.TaskID, reason []byte) error {
	caller, err := origin.Signer()
	if err != nil {
		return err
	}
	if len(reason) > m.cfg.MaxReasonLength {
		return fmt.Errorf("reason length %d > %d: %w", len(reason), m.cfg.MaxReasonLength, domain.ErrReasonTooLong)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.task(id)
	if err != nil {
		return err
	}
	if !task.IsParty(caller) {
		return domain.ErrNotParty
	}
	if task.Status != domain.TaskSubmitted {
		return statusErr(task, domain.TaskSubmitted)
	}

	task.DisputeReason = append([]byte(nil), reason...)
	m.transition(task, domain.TaskDisputed)

	m.events.Emit(domain.EvtTaskDisputed, map[string]any{
		"task_id":     id,
		"disputed_by": caller,
	})
	return nil
}

// CancelTask withdraws an Open task and refunds the escrow.
func (m *Market) CancelTask(origin domain.Origin, id domain.TaskID) error {
	caller, err := origin.Signer()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, err := m.task(id)
	if err != nil {
		return err
	}
	if task.Poster != caller {
		return domain.ErrNotPoster
	}
	if task.Status != domain.TaskOpen {
		return statusErr(task, domain.TaskOpen)
	}

	if err := m.currency.Unreserve(task.Poster, task.Reward); err != nil {
		return fmt.Errorf("refund escrow: %w", err)
	}

	m.transition(task, domain.TaskCancelled)
	m.release(task, "refunded")

	m.events.Emit(domain.EvtTaskCancelled, map[string]any{
		"task_id": id,
		"refund":  task.Reward,
	})
	return nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Task returns a copy of the task.
func (m *Market) Task(id domain.TaskID) (domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, err := m.task(id)
	if err != nil {
		return domain.Task{}, err
	}
	return t.Clone(), nil
}

// Bid returns the bid placed by bidder on task id.
func (m *Market) Bid(id domain.TaskID, bidder domain.AccountID) (domain.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bids[id][bidder]
	if !ok {
		return domain.Bid{}, domain.ErrBidNotFound
	}
	cp := *b
	cp.Proposal = append([]byte(nil), b.Proposal...)
	return cp, nil
}

// Bids returns all bids on a task in the order bidders first bid.
func (m *Market) Bids(id domain.TaskID) []domain.Bid {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Bid
	for _, bidder := range m.bidOrder[id] {
		b := *m.bids[id][bidder]
		b.Proposal = append([]byte(nil), b.Proposal...)
		out = append(out, b)
	}
	return out
}

// TaskCount returns how many tasks have ever been posted.
func (m *Market) TaskCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextID
}

// ActiveTasks returns how many non-terminal tasks an account has posted.
func (m *Market) ActiveTasks(account domain.AccountID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[account]
}

// Escrow returns the total reward currently held for non-terminal tasks.
func (m *Market) Escrow() domain.Balance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.escrow
}

// Filter narrows a task listing. Zero values match everything.
type Filter struct {
	Status     domain.TaskStatus
	Poster     domain.AccountID
	AssignedTo domain.AccountID
	Limit      int
}

// List returns tasks matching f, ordered by id.
func (m *Market) List(f Filter) []domain.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Task
	for _, t := range m.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Poster != "" && t.Poster != f.Poster {
			continue
		}
		if f.AssignedTo != "" && (t.AssignedTo == nil || *t.AssignedTo != f.AssignedTo) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// ─── Internals (caller holds m.mu) ──────────────────────────────────────────

func (m *Market) task(id domain.TaskID) (*domain.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, domain.ErrTaskNotFound)
	}
	return t, nil
}

func (m *Market) transition(t *domain.Task, to domain.TaskStatus) {
	t.Status = to
	metrics.TaskTransitions.WithLabelValues(string(to)).Inc()
}

// release accounts for escrow leaving reservation as a task terminates.
func (m *Market) release(t *domain.Task, path string) {
	m.escrow -= t.Reward
	if m.active[t.Poster] > 0 {
		m.active[t.Poster]--
	}
	metrics.EscrowReleased.WithLabelValues(path).Add(float64(t.Reward))
	metrics.EscrowHeld.Set(float64(m.escrow))
}

func statusErr(t *domain.Task, want domain.TaskStatus) error {
	return fmt.Errorf("task %d is %s, want %s: %w", t.ID, t.Status, want, domain.ErrInvalidTaskStatus)
}
