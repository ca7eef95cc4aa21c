package market

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/clawchain/clawmarket/internal/app/credit"
	"github.com/clawchain/clawmarket/internal/app/reputation"
	"github.com/clawchain/clawmarket/internal/domain"
)

const (
	poster = domain.AccountID("alice")
	worker = domain.AccountID("bob")
	other  = domain.AccountID("carol")
)

// ─── Stubs ──────────────────────────────────────────────────────────────────

// stubReputation records every callback so the market can be tested without
// a real reputation ledger.
type stubReputation struct {
	posted    []domain.AccountID
	completed []domain.AccountID
	disputes  [][2]domain.AccountID
}

func (s *stubReputation) OnTaskCompleted(w domain.AccountID, _ domain.Balance) {
	s.completed = append(s.completed, w)
}
func (s *stubReputation) OnTaskPosted(p domain.AccountID, _ domain.Balance) {
	s.posted = append(s.posted, p)
}
func (s *stubReputation) OnDisputeResolved(winner, loser domain.AccountID) {
	s.disputes = append(s.disputes, [2]domain.AccountID{winner, loser})
}
func (s *stubReputation) GetReputation(domain.AccountID) uint32 { return 5000 }
func (s *stubReputation) MeetsMinimumReputation(_ domain.AccountID, threshold uint32) bool {
	return 5000 >= threshold
}

// failingCurrency rejects every movement.
type failingCurrency struct{}

func (failingCurrency) Reserve(domain.AccountID, domain.Balance) error {
	return domain.ErrInsufficientBalance
}
func (failingCurrency) Unreserve(domain.AccountID, domain.Balance) error {
	return domain.ErrInsufficientBalance
}
func (failingCurrency) TransferFromReserved(_, _ domain.AccountID, _ domain.Balance) error {
	return domain.ErrInsufficientBalance
}

type captureSink struct {
	kinds []domain.EventKind
}

func (c *captureSink) Emit(kind domain.EventKind, _ map[string]any) {
	c.kinds = append(c.kinds, kind)
}

// ─── Fixtures ───────────────────────────────────────────────────────────────

type fixture struct {
	market *Market
	ledger *credit.Ledger
	rep    *reputation.Ledger
}

// newFixture wires the market to a real currency and reputation ledger with
// 10000 for each of alice, bob, and carol.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger := credit.NewLedger(0)
	for _, acc := range []domain.AccountID{poster, worker, other} {
		if err := ledger.Deposit(acc, 10000); err != nil {
			t.Fatalf("Deposit(%s): %v", acc, err)
		}
	}
	rep := reputation.NewLedger(reputation.DefaultConfig())
	return &fixture{
		market: New(DefaultConfig(), rep, ledger),
		ledger: ledger,
		rep:    rep,
	}
}

func (f *fixture) post(t *testing.T) domain.TaskID {
	t.Helper()
	id, err := f.market.PostTask(domain.Signed(poster), []byte("Build a website"), []byte("Need a React website"), 1000, 1000)
	if err != nil {
		t.Fatalf("PostTask: %v", err)
	}
	return id
}

func (f *fixture) assigned(t *testing.T) domain.TaskID {
	t.Helper()
	id := f.post(t)
	if err := f.market.BidOnTask(domain.Signed(worker), id, 800, []byte("Proposal")); err != nil {
		t.Fatalf("BidOnTask: %v", err)
	}
	if err := f.market.AssignTask(domain.Signed(poster), id, worker); err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	return id
}

func (f *fixture) submitted(t *testing.T) domain.TaskID {
	t.Helper()
	id := f.assigned(t)
	if err := f.market.SubmitWork(domain.Signed(worker), id, []byte("https://proof.com")); err != nil {
		t.Fatalf("SubmitWork: %v", err)
	}
	return id
}

func (f *fixture) status(t *testing.T, id domain.TaskID) domain.TaskStatus {
	t.Helper()
	task, err := f.market.Task(id)
	if err != nil {
		t.Fatalf("Task(%d): %v", id, err)
	}
	return task.Status
}

// ─── PostTask ───────────────────────────────────────────────────────────────

func TestPostTask_Works(t *testing.T) {
	f := newFixture(t)
	id := f.post(t)

	if id != 0 {
		t.Errorf("first task id = %d, want 0", id)
	}
	task, _ := f.market.Task(id)
	if task.Poster != poster || task.Reward != 1000 || task.Status != domain.TaskOpen {
		t.Errorf("task = %+v", task)
	}
	if task.Deadline != 1000 {
		t.Errorf("deadline = %d, want 1000", task.Deadline)
	}
	if got := f.ledger.ReservedBalance(poster); got != 1000 {
		t.Errorf("reserved = %d, want 1000", got)
	}

	rep := f.rep.Reputation(poster)
	if rep.TotalTasksPosted != 1 || rep.TotalSpent != 1000 {
		t.Errorf("rep posted = %d spent = %d, want 1/1000", rep.TotalTasksPosted, rep.TotalSpent)
	}
	if got := f.market.ActiveTasks(poster); got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
}

func TestPostTask_RewardTooLow(t *testing.T) {
	f := newFixture(t)

	for _, reward := range []domain.Balance{0, 50, 99} {
		_, err := f.market.PostTask(domain.Signed(poster), []byte("Task"), []byte("Description"), reward, 1000)
		if !errors.Is(err, domain.ErrRewardTooLow) {
			t.Errorf("reward %d: err = %v, want ErrRewardTooLow", reward, err)
		}
	}
	if got := f.ledger.ReservedBalance(poster); got != 0 {
		t.Errorf("reserved = %d, want 0", got)
	}
	if got := f.market.TaskCount(); got != 0 {
		t.Errorf("task count = %d, want 0", got)
	}
}

func TestPostTask_LengthLimits(t *testing.T) {
	f := newFixture(t)

	_, err := f.market.PostTask(domain.Signed(poster), bytes.Repeat([]byte("t"), 129), nil, 1000, 0)
	if !errors.Is(err, domain.ErrTitleTooLong) {
		t.Errorf("err = %v, want ErrTitleTooLong", err)
	}
	_, err = f.market.PostTask(domain.Signed(poster), nil, bytes.Repeat([]byte("d"), 1025), 1000, 0)
	if !errors.Is(err, domain.ErrDescriptionTooLong) {
		t.Errorf("err = %v, want ErrDescriptionTooLong", err)
	}
	_, err = f.market.PostTask(domain.Signed(poster), bytes.Repeat([]byte("t"), 128), bytes.Repeat([]byte("d"), 1024), 1000, 0)
	if err != nil {
		t.Errorf("at-limit post: %v", err)
	}
}

func TestPostTask_TooManyActiveTasks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxActiveTasksPerAccount = 2
	ledger := credit.NewLedger(0)
	ledger.Deposit(poster, 10000)
	m := New(cfg, &stubReputation{}, ledger)

	for i := 0; i < 2; i++ {
		if _, err := m.PostTask(domain.Signed(poster), nil, nil, 100, 0); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	_, err := m.PostTask(domain.Signed(poster), nil, nil, 100, 0)
	if !errors.Is(err, domain.ErrTooManyActiveTasks) {
		t.Fatalf("err = %v, want ErrTooManyActiveTasks", err)
	}

	// Cancelling frees a slot.
	if err := m.CancelTask(domain.Signed(poster), 0); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if _, err := m.PostTask(domain.Signed(poster), nil, nil, 100, 0); err != nil {
		t.Errorf("post after cancel: %v", err)
	}
}

func TestPostTask_InsufficientBalance(t *testing.T) {
	f := newFixture(t)

	_, err := f.market.PostTask(domain.Signed(poster), nil, nil, 20000, 0)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := f.market.TaskCount(); got != 0 {
		t.Errorf("task count = %d, want 0", got)
	}
	if got := f.rep.Reputation(poster).TotalTasksPosted; got != 0 {
		t.Errorf("posted counter = %d after failed post", got)
	}
}

func TestPostTask_RootCannotPost(t *testing.T) {
	f := newFixture(t)
	if _, err := f.market.PostTask(domain.Root(), nil, nil, 1000, 0); !errors.Is(err, domain.ErrBadOrigin) {
		t.Errorf("err = %v, want ErrBadOrigin", err)
	}
}

func TestTaskCount_Increments(t *testing.T) {
	f := newFixture(t)
	if got := f.market.TaskCount(); got != 0 {
		t.Fatalf("task count = %d, want 0", got)
	}
	f.post(t)
	if got := f.market.TaskCount(); got != 1 {
		t.Errorf("task count = %d, want 1", got)
	}
	f.post(t)
	if got := f.market.TaskCount(); got != 2 {
		t.Errorf("task count = %d, want 2", got)
	}
}

// ─── BidOnTask ──────────────────────────────────────────────────────────────

func TestBidOnTask_Works(t *testing.T) {
	f := newFixture(t)
	id := f.post(t)

	if err := f.market.BidOnTask(domain.Signed(worker), id, 800, []byte("I can do this")); err != nil {
		t.Fatalf("BidOnTask: %v", err)
	}
	bid, err := f.market.Bid(id, worker)
	if err != nil {
		t.Fatalf("Bid: %v", err)
	}
	if bid.Bidder != worker || bid.Amount != 800 {
		t.Errorf("bid = %+v", bid)
	}
}

func TestBidOnTask_CannotBidOnOwnTask(t *testing.T) {
	f := newFixture(t)
	id := f.post(t)

	err := f.market.BidOnTask(domain.Signed(poster), id, 800, []byte("Proposal"))
	if !errors.Is(err, domain.ErrCannotBidOnOwnTask) {
		t.Errorf("err = %v, want ErrCannotBidOnOwnTask", err)
	}
}

func TestBidOnTask_Errors(t *testing.T) {
	f := newFixture(t)
	id := f.post(t)

	if err := f.market.BidOnTask(domain.Signed(worker), 99, 1, nil); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("missing task err = %v, want ErrTaskNotFound", err)
	}
	long := bytes.Repeat([]byte("p"), 513)
	if err := f.market.BidOnTask(domain.Signed(worker), id, 1, long); !errors.Is(err, domain.ErrProposalTooLong) {
		t.Errorf("long proposal err = %v, want ErrProposalTooLong", err)
	}
	if _, err := f.market.Bid(id, worker); !errors.Is(err, domain.ErrBidNotFound) {
		t.Errorf("Bid() err = %v, want ErrBidNotFound", err)
	}
}

func TestBidOnTask_TooManyBids(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBidsPerTask = 3
	ledger := credit.NewLedger(0)
	ledger.Deposit(poster, 10000)
	m := New(cfg, &stubReputation{}, ledger)
	id, _ := m.PostTask(domain.Signed(poster), nil, nil, 100, 0)

	for i := 0; i < 3; i++ {
		bidder := domain.AccountID(fmt.Sprintf("w%d", i))
		if err := m.BidOnTask(domain.Signed(bidder), id, 50, nil); err != nil {
			t.Fatalf("bid %d: %v", i, err)
		}
	}
	if err := m.BidOnTask(domain.Signed("w3"), id, 50, nil); !errors.Is(err, domain.ErrTooManyBids) {
		t.Errorf("err = %v, want ErrTooManyBids", err)
	}
	// An existing bidder may still revise their bid.
	if err := m.BidOnTask(domain.Signed("w0"), id, 40, []byte("cheaper")); err != nil {
		t.Errorf("rebid at cap: %v", err)
	}
	if bid, _ := m.Bid(id, "w0"); bid.Amount != 40 {
		t.Errorf("rebid amount = %d, want 40", bid.Amount)
	}
	if got := len(m.Bids(id)); got != 3 {
		t.Errorf("bids = %d, want 3", got)
	}
}

func TestBidOnTask_OnlyWhileOpen(t *testing.T) {
	f := newFixture(t)
	id := f.assigned(t)

	err := f.market.BidOnTask(domain.Signed(other), id, 700, nil)
	if !errors.Is(err, domain.ErrInvalidTaskStatus) {
		t.Errorf("err = %v, want ErrInvalidTaskStatus", err)
	}
}

// ─── AssignTask ─────────────────────────────────────────────────────────────

func TestAssignTask_Works(t *testing.T) {
	f := newFixture(t)
	id := f.assigned(t)

	task, _ := f.market.Task(id)
	if task.Status != domain.TaskAssigned {
		t.Errorf("status = %s, want ASSIGNED", task.Status)
	}
	if task.AssignedTo == nil || *task.AssignedTo != worker {
		t.Errorf("assigned_to = %v, want %s", task.AssignedTo, worker)
	}
}

func TestAssignTask_OnlyPoster(t *testing.T) {
	f := newFixture(t)
	id := f.post(t)
	f.market.BidOnTask(domain.Signed(worker), id, 800, []byte("Proposal"))

	err := f.market.AssignTask(domain.Signed(other), id, worker)
	if !errors.Is(err, domain.ErrNotPoster) {
		t.Errorf("err = %v, want ErrNotPoster", err)
	}
	if got := f.status(t, id); got != domain.TaskOpen {
		t.Errorf("status = %s, want OPEN", got)
	}
}

func TestAssignTask_RequiresBid(t *testing.T) {
	f := newFixture(t)
	id := f.post(t)

	err := f.market.AssignTask(domain.Signed(poster), id, worker)
	if !errors.Is(err, domain.ErrBidNotFound) {
		t.Errorf("err = %v, want ErrBidNotFound", err)
	}
}

func TestAssignTask_Twice(t *testing.T) {
	f := newFixture(t)
	id := f.assigned(t)

	err := f.market.AssignTask(domain.Signed(poster), id, worker)
	if !errors.Is(err, domain.ErrInvalidTaskStatus) {
		t.Errorf("err = %v, want ErrInvalidTaskStatus", err)
	}
}

// ─── SubmitWork / ApproveWork ───────────────────────────────────────────────

func TestSubmitWork_OnlyAssignee(t *testing.T) {
	f := newFixture(t)
	id := f.assigned(t)

	if err := f.market.SubmitWork(domain.Signed(other), id, []byte("x")); !errors.Is(err, domain.ErrNotAssignee) {
		t.Errorf("err = %v, want ErrNotAssignee", err)
	}
	if err := f.market.SubmitWork(domain.Signed(poster), id, []byte("x")); !errors.Is(err, domain.ErrNotAssignee) {
		t.Errorf("poster err = %v, want ErrNotAssignee", err)
	}
}

func TestSubmitWork_ProofTooLong(t *testing.T) {
	f := newFixture(t)
	id := f.assigned(t)

	long := make([]byte, DefaultConfig().MaxProofLength+1)
	if err := f.market.SubmitWork(domain.Signed(worker), id, long); !errors.Is(err, domain.ErrProofTooLong) {
		t.Errorf("err = %v, want ErrProofTooLong", err)
	}
	if got := f.status(t, id); got != domain.TaskAssigned {
		t.Errorf("status = %s, want ASSIGNED", got)
	}
}

func TestSubmitWork_Twice(t *testing.T) {
	f := newFixture(t)
	id := f.submitted(t)

	err := f.market.SubmitWork(domain.Signed(worker), id, []byte("again"))
	if !errors.Is(err, domain.ErrInvalidTaskStatus) {
		t.Errorf("err = %v, want ErrInvalidTaskStatus", err)
	}
}

func TestSubmitAndApprove_ReleasesEscrow(t *testing.T) {
	f := newFixture(t)
	id := f.assigned(t)
	workerBefore := f.ledger.Free(worker)

	if err := f.market.SubmitWork(domain.Signed(worker), id, []byte("https://proof.com")); err != nil {
		t.Fatalf("SubmitWork: %v", err)
	}
	if err := f.market.ApproveWork(domain.Signed(poster), id); err != nil {
		t.Fatalf("ApproveWork: %v", err)
	}

	task, _ := f.market.Task(id)
	if task.Status != domain.TaskApproved {
		t.Errorf("status = %s, want APPROVED", task.Status)
	}
	if string(task.Submission) != "https://proof.com" {
		t.Errorf("submission = %q", task.Submission)
	}
	// The posted reward is paid, not the bid amount.
	if got := f.ledger.Free(worker); got != workerBefore+1000 {
		t.Errorf("worker free = %d, want %d", got, workerBefore+1000)
	}
	if got := f.ledger.Free(poster); got != 9000 {
		t.Errorf("poster free = %d, want 9000", got)
	}
	if got := f.ledger.ReservedBalance(poster); got != 0 {
		t.Errorf("poster reserved = %d, want 0", got)
	}

	rep := f.rep.Reputation(worker)
	if rep.TotalTasksCompleted != 1 || rep.SuccessfulCompletions != 1 || rep.TotalEarned != 1000 {
		t.Errorf("worker rep = %+v", rep)
	}
	if got := f.market.ActiveTasks(poster); got != 0 {
		t.Errorf("active = %d, want 0", got)
	}
	if got := f.market.Escrow(); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
}

func TestApproveWork_Guards(t *testing.T) {
	f := newFixture(t)
	id := f.assigned(t)

	if err := f.market.ApproveWork(domain.Signed(poster), id); !errors.Is(err, domain.ErrInvalidTaskStatus) {
		t.Errorf("approve before submit err = %v, want ErrInvalidTaskStatus", err)
	}
	f.market.SubmitWork(domain.Signed(worker), id, nil)
	if err := f.market.ApproveWork(domain.Signed(worker), id); !errors.Is(err, domain.ErrNotPoster) {
		t.Errorf("worker approve err = %v, want ErrNotPoster", err)
	}
	if err := f.market.ApproveWork(domain.Signed(poster), 42); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("missing task err = %v, want ErrTaskNotFound", err)
	}
}

func TestApproveWork_CurrencyFailureLeavesNoTrace(t *testing.T) {
	rep := &stubReputation{}
	ledger := credit.NewLedger(0)
	ledger.Deposit(poster, 10000)
	m := New(DefaultConfig(), rep, ledger)

	id, _ := m.PostTask(domain.Signed(poster), nil, nil, 1000, 0)
	m.BidOnTask(domain.Signed(worker), id, 1, nil)
	m.AssignTask(domain.Signed(poster), id, worker)
	m.SubmitWork(domain.Signed(worker), id, nil)

	// Swap in a currency that rejects the payout.
	m.currency = failingCurrency{}
	err := m.ApproveWork(domain.Signed(poster), id)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	task, _ := m.Task(id)
	if task.Status != domain.TaskSubmitted {
		t.Errorf("status = %s, want SUBMITTED", task.Status)
	}
	if len(rep.completed) != 0 {
		t.Errorf("completion callback fired: %v", rep.completed)
	}
}

// ─── CancelTask ─────────────────────────────────────────────────────────────

func TestCancelTask_RefundsEscrow(t *testing.T) {
	f := newFixture(t)
	id := f.post(t)

	if got := f.ledger.ReservedBalance(poster); got != 1000 {
		t.Fatalf("reserved = %d, want 1000", got)
	}
	if err := f.market.CancelTask(domain.Signed(poster), id); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if got := f.ledger.ReservedBalance(poster); got != 0 {
		t.Errorf("reserved = %d, want 0", got)
	}
	if got := f.ledger.Free(poster); got != 10000 {
		t.Errorf("free = %d, want 10000", got)
	}
	if got := f.status(t, id); got != domain.TaskCancelled {
		t.Errorf("status = %s, want CANCELLED", got)
	}
}

func TestCancelTask_CurrencyFailureLeavesNoTrace(t *testing.T) {
	rep := &stubReputation{}
	ledger := credit.NewLedger(0)
	ledger.Deposit(poster, 10000)
	m := New(DefaultConfig(), rep, ledger)
	id, _ := m.PostTask(domain.Signed(poster), nil, nil, 1000, 0)

	sink := &captureSink{}
	m.SetEventSink(sink)
	m.currency = failingCurrency{}
	if err := m.CancelTask(domain.Signed(poster), id); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	task, _ := m.Task(id)
	if task.Status != domain.TaskOpen {
		t.Errorf("status = %s, want OPEN", task.Status)
	}
	if got := m.Escrow(); got != 1000 {
		t.Errorf("escrow = %d, want 1000", got)
	}
	if got := m.ActiveTasks(poster); got != 1 {
		t.Errorf("active tasks = %d, want 1", got)
	}
	if len(sink.kinds) != 0 {
		t.Errorf("failed cancel emitted %v", sink.kinds)
	}
}

func TestCancelTask_CannotCancelAssigned(t *testing.T) {
	f := newFixture(t)
	id := f.assigned(t)

	err := f.market.CancelTask(domain.Signed(poster), id)
	if !errors.Is(err, domain.ErrInvalidTaskStatus) {
		t.Errorf("err = %v, want ErrInvalidTaskStatus", err)
	}
	if got := f.ledger.ReservedBalance(poster); got != 1000 {
		t.Errorf("reserved = %d, want 1000", got)
	}
}

func TestCancelTask_OnlyPoster(t *testing.T) {
	f := newFixture(t)
	id := f.post(t)

	if err := f.market.CancelTask(domain.Signed(worker), id); !errors.Is(err, domain.ErrNotPoster) {
		t.Errorf("err = %v, want ErrNotPoster", err)
	}
}

func TestCancelTask_Twice(t *testing.T) {
	f := newFixture(t)
	id := f.post(t)
	f.market.CancelTask(domain.Signed(poster), id)

	if err := f.market.CancelTask(domain.Signed(poster), id); !errors.Is(err, domain.ErrInvalidTaskStatus) {
		t.Errorf("err = %v, want ErrInvalidTaskStatus", err)
	}
	if got := f.ledger.Free(poster); got != 10000 {
		t.Errorf("free = %d, want 10000 (no double refund)", got)
	}
}

// ─── Queries ────────────────────────────────────────────────────────────────

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	a := f.post(t)
	b := f.assigned(t)
	f.market.CancelTask(domain.Signed(poster), a)

	if got := f.market.List(Filter{}); len(got) != 2 {
		t.Fatalf("List() = %d tasks, want 2", len(got))
	}
	open := f.market.List(Filter{Status: domain.TaskAssigned})
	if len(open) != 1 || open[0].ID != b {
		t.Errorf("assigned tasks = %+v", open)
	}
	mine := f.market.List(Filter{AssignedTo: worker})
	if len(mine) != 1 || mine[0].ID != b {
		t.Errorf("worker tasks = %+v", mine)
	}
	if got := f.market.List(Filter{Poster: poster, Limit: 1}); len(got) != 1 || got[0].ID != a {
		t.Errorf("limited list = %+v", got)
	}
}

func TestTask_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	id := f.post(t)

	task, _ := f.market.Task(id)
	task.Title[0] = 'X'
	task.Status = domain.TaskResolved

	again, _ := f.market.Task(id)
	if again.Title[0] != 'B' || again.Status != domain.TaskOpen {
		t.Errorf("stored task mutated through copy: %+v", again)
	}
}
