package node

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/infra/sqlite"
)

var ctx = context.Background()

func signed(acc domain.AccountID) domain.Origin { return domain.Signed(acc) }

type capturePublisher struct {
	batches [][]domain.Event
}

func (c *capturePublisher) Publish(_ context.Context, events []domain.Event) error {
	c.batches = append(c.batches, events)
	return nil
}

func openDB(t *testing.T, dir string) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	return db
}

func newNode(t *testing.T) (*Node, *capturePublisher) {
	t.Helper()
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { db.Close() })
	pub := &capturePublisher{}
	n, err := Open(DefaultConfig(), db, DevGenesis(), pub)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	return n, pub
}

func mustDispatch(t *testing.T, n *Node, o domain.Origin, c Call) Receipt {
	t.Helper()
	r, err := n.Dispatch(ctx, o, c)
	if err != nil {
		t.Fatalf("Dispatch(%s) error: %v", c.Method(), err)
	}
	return r
}

// runLifecycle drives one task through approval and one through a
// dispute won by the worker.
func runLifecycle(t *testing.T, n *Node) {
	t.Helper()
	r := mustDispatch(t, n, signed("alice"), PostTask{Title: "Build a website", Description: "React", Reward: 1000, Deadline: 1000})
	if r.TaskID == nil || *r.TaskID != 0 {
		t.Fatalf("post receipt task id = %v, want 0", r.TaskID)
	}
	mustDispatch(t, n, signed("bob"), BidOnTask{TaskID: 0, Amount: 800, Proposal: "I can do this"})
	mustDispatch(t, n, signed("alice"), AssignTask{TaskID: 0, Bidder: "bob"})
	mustDispatch(t, n, signed("bob"), SubmitWork{TaskID: 0, Proof: "https://proof.com"})
	mustDispatch(t, n, signed("alice"), ApproveWork{TaskID: 0})
	mustDispatch(t, n, signed("alice"), SubmitReview{Reviewee: "bob", Rating: 5, Comment: "great", TaskID: 0})

	mustDispatch(t, n, signed("charlie"), PostTask{Title: "Logo", Reward: 500})
	mustDispatch(t, n, signed("bob"), BidOnTask{TaskID: 1, Amount: 500})
	mustDispatch(t, n, signed("charlie"), AssignTask{TaskID: 1, Bidder: "bob"})
	mustDispatch(t, n, signed("bob"), SubmitWork{TaskID: 1, Proof: "logo.png"})
	mustDispatch(t, n, signed("charlie"), DisputeTask{TaskID: 1, Reason: "Work is incomplete"})
	mustDispatch(t, n, domain.Root(), ResolveDispute{TaskID: 1, Winner: "bob"})
}

func TestDispatch_Lifecycle(t *testing.T) {
	n, _ := newNode(t)
	runLifecycle(t, n)

	if got := n.Balance("bob").Free; got != 11500 {
		t.Errorf("bob free = %d, want 11500", got)
	}
	if got := n.Balance("alice"); got.Free != 9000 || got.Reserved != 0 {
		t.Errorf("alice = %+v, want free 9000 reserved 0", got)
	}
	if got := n.Balance("charlie"); got.Free != 9500 || got.Reserved != 0 {
		t.Errorf("charlie = %+v, want free 9500 reserved 0", got)
	}

	// 5000 + 500 (review) + 200 (dispute won)
	if got := n.Reputation("bob").Score; got != 5700 {
		t.Errorf("bob score = %d, want 5700", got)
	}
	if got := n.Reputation("charlie").Score; got != 4500 {
		t.Errorf("charlie score = %d, want 4500", got)
	}
	if got := n.TaskCount(); got != 2 {
		t.Errorf("task count = %d, want 2", got)
	}
	if got := n.Escrow(); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
	if d, c := n.LedgerTotals(); d != c {
		t.Errorf("ledger debits %d != credits %d", d, c)
	}
	if got := n.Seq(); got != 12 {
		t.Errorf("seq = %d, want 12", got)
	}
}

func TestDispatch_FailureIsJournaledWithoutEvents(t *testing.T) {
	n, pub := newNode(t)

	_, err := n.Dispatch(ctx, signed("alice"), PostTask{Title: "cheap", Reward: 50})
	if !errors.Is(err, domain.ErrRewardTooLow) {
		t.Fatalf("err = %v, want ErrRewardTooLow", err)
	}
	if len(pub.batches) != 0 {
		t.Errorf("published %d batches for a failed call", len(pub.batches))
	}
	if got := n.Balance("alice").Reserved; got != 0 {
		t.Errorf("reserved = %d, want 0", got)
	}

	xs, err := n.Extrinsics(0)
	if err != nil {
		t.Fatalf("Extrinsics() error: %v", err)
	}
	if len(xs) != 1 || xs[0].OK || xs[0].Error == "" || xs[0].Origin != "signed:alice" {
		t.Errorf("journal = %+v", xs)
	}
	evts, _ := n.Events(0, 0)
	if len(evts) != 0 {
		t.Errorf("events = %d, want 0", len(evts))
	}

	// The failed call still consumed a sequence number.
	r := mustDispatch(t, n, signed("alice"), PostTask{Title: "ok", Reward: 100})
	if r.Seq != 2 {
		t.Errorf("seq = %d, want 2", r.Seq)
	}
}

func TestDispatch_EventsStampedAndPublished(t *testing.T) {
	n, pub := newNode(t)

	mustDispatch(t, n, signed("alice"), PostTask{Title: "t", Reward: 100})
	r := mustDispatch(t, n, signed("alice"), SubmitReview{Reviewee: "bob", Rating: 3})

	if len(r.Events) != 2 {
		t.Fatalf("review events = %d, want 2", len(r.Events))
	}
	if r.Events[0].Kind != domain.EvtReviewSubmitted || r.Events[1].Kind != domain.EvtReputationUpdated {
		t.Errorf("kinds = %s, %s", r.Events[0].Kind, r.Events[1].Kind)
	}
	for i, e := range r.Events {
		if e.Seq != r.Seq || e.Index != i || e.ID == "" {
			t.Errorf("event %d stamp = seq %d idx %d id %q", i, e.Seq, e.Index, e.ID)
		}
	}
	if r.Events[0].Payload["reviewee"] != "bob" {
		t.Errorf("payload reviewee = %#v, want plain string", r.Events[0].Payload["reviewee"])
	}

	if len(pub.batches) != 2 {
		t.Fatalf("published batches = %d, want 2", len(pub.batches))
	}
	stored, err := n.Events(1, 0)
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if len(stored) != 2 || stored[0].ID != r.Events[0].ID {
		t.Errorf("stored events after seq 1 = %+v", stored)
	}
}

func TestDispatch_AcceptsPointerCalls(t *testing.T) {
	n, _ := newNode(t)
	c, err := DecodeCall(MethodPostTask, []byte(`{"title":"x","reward":200}`))
	if err != nil {
		t.Fatalf("DecodeCall() error: %v", err)
	}
	r := mustDispatch(t, n, signed("bob"), c)
	if n.Escrow() != n.TotalReserved() {
		t.Errorf("escrow %d != reserved %d", n.Escrow(), n.TotalReserved())
	}
	if r.TaskID == nil {
		t.Fatal("missing task id")
	}
	if got := n.Balance("bob").Reserved; got != 200 {
		t.Errorf("reserved = %d, want 200", got)
	}
}

func TestDispatch_CancelledContext(t *testing.T) {
	n, _ := newNode(t)
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := n.Dispatch(cctx, signed("alice"), PostTask{Reward: 100}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if got := n.Seq(); got != 0 {
		t.Errorf("seq = %d, want 0", got)
	}
}

func TestReplay_RebuildsState(t *testing.T) {
	dir := t.TempDir()

	db := openDB(t, dir)
	n, err := Open(DefaultConfig(), db, DevGenesis(), nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	runLifecycle(t, n)
	n.Dispatch(ctx, signed("dave"), PostTask{Reward: 100}) // fails: no funds
	mustDispatch(t, n, domain.Root(), SlashReputation{Target: "alice", Amount: 250, Reason: "spam"})
	db.Close()

	db = openDB(t, dir)
	defer db.Close()
	// A different genesis is ignored once one is persisted.
	replayed, err := Open(DefaultConfig(), db, Genesis{Balances: map[domain.AccountID]domain.Balance{"mallory": 1}}, nil)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}

	if replayed.Seq() != n.Seq() {
		t.Errorf("seq = %d, want %d", replayed.Seq(), n.Seq())
	}
	for _, acc := range []domain.AccountID{"alice", "bob", "charlie"} {
		if got, want := replayed.Balance(acc), n.Balance(acc); got != want {
			t.Errorf("%s balance = %+v, want %+v", acc, got, want)
		}
		if got, want := replayed.Reputation(acc), n.Reputation(acc); got != want {
			t.Errorf("%s reputation = %+v, want %+v", acc, got, want)
		}
		if got, want := len(replayed.History(acc)), len(n.History(acc)); got != want {
			t.Errorf("%s history = %d, want %d", acc, got, want)
		}
	}
	if got := replayed.Balance("mallory").Free; got != 0 {
		t.Errorf("mallory free = %d, want 0", got)
	}
	task, err := replayed.Task(1)
	if err != nil {
		t.Fatalf("Task(1) error: %v", err)
	}
	if task.Status != domain.TaskResolved || string(task.DisputeReason) != "Work is incomplete" {
		t.Errorf("task 1 = %+v", task)
	}

	// New calls continue the sequence.
	r := mustDispatch(t, replayed, signed("alice"), PostTask{Reward: 100})
	if r.Seq != n.Seq()+1 || *r.TaskID != 2 {
		t.Errorf("next receipt = seq %d task %d", r.Seq, *r.TaskID)
	}
}

func TestReplay_NonUTF8TextIsExact(t *testing.T) {
	dir := t.TempDir()
	title := strings.Repeat("\xff", 100)
	proof := "\xfe\x00ok"

	db := openDB(t, dir)
	n, err := Open(DefaultConfig(), db, DevGenesis(), nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	mustDispatch(t, n, signed("alice"), PostTask{Title: Bytes(title), Reward: 100})
	mustDispatch(t, n, signed("bob"), BidOnTask{TaskID: 0, Amount: 90})
	mustDispatch(t, n, signed("alice"), AssignTask{TaskID: 0, Bidder: "bob"})
	mustDispatch(t, n, signed("bob"), SubmitWork{TaskID: 0, Proof: Bytes(proof)})
	db.Close()

	db = openDB(t, dir)
	defer db.Close()
	replayed, err := Open(DefaultConfig(), db, DevGenesis(), nil)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	task, err := replayed.Task(0)
	if err != nil {
		t.Fatalf("Task(0) error: %v", err)
	}
	if string(task.Title) != title {
		t.Errorf("title = %q, want %q", task.Title, title)
	}
	if string(task.Submission) != proof {
		t.Errorf("submission = %q, want %q", task.Submission, proof)
	}
	if replayed.Seq() != n.Seq() {
		t.Errorf("seq = %d, want %d", replayed.Seq(), n.Seq())
	}
}

func TestDispatch_HaltsAfterJournalFailure(t *testing.T) {
	db := openDB(t, t.TempDir())
	n, err := Open(DefaultConfig(), db, DevGenesis(), nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	mustDispatch(t, n, signed("alice"), PostTask{Reward: 100})
	db.Close()

	if _, err := n.Dispatch(ctx, signed("alice"), PostTask{Reward: 100}); !errors.Is(err, ErrHalted) {
		t.Fatalf("err = %v, want ErrHalted", err)
	}
	if n.Halted() == nil {
		t.Fatal("Halted() = nil after journal failure")
	}
	seq := n.Seq()

	// Further calls are refused without touching state.
	if _, err := n.Dispatch(ctx, signed("bob"), BidOnTask{TaskID: 0, Amount: 50}); !errors.Is(err, ErrHalted) {
		t.Errorf("err = %v, want ErrHalted", err)
	}
	if got := n.Seq(); got != seq {
		t.Errorf("seq = %d, want %d", got, seq)
	}
	if bids, _ := n.Bids(0); len(bids) != 0 {
		t.Errorf("bids = %d, want 0", len(bids))
	}
}

type ctxPublisher struct {
	cancel context.CancelFunc
	err    error
}

func (p *ctxPublisher) Publish(ctx context.Context, _ []domain.Event) error {
	p.cancel()
	p.err = ctx.Err()
	return nil
}

func TestDispatch_PublishOutlivesCallerContext(t *testing.T) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pub := &ctxPublisher{cancel: cancel}
	n, err := Open(DefaultConfig(), nil, DevGenesis(), pub)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := n.Dispatch(cctx, signed("alice"), PostTask{Reward: 100}); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if pub.err != nil {
		t.Errorf("publish ctx err = %v, want nil after caller cancel", pub.err)
	}
}

func TestOpen_Ephemeral(t *testing.T) {
	n, err := Open(DefaultConfig(), nil, DevGenesis(), nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	mustDispatch(t, n, signed("alice"), PostTask{Reward: 100})
	if _, err := n.Events(0, 0); !errors.Is(err, ErrNoJournal) {
		t.Errorf("Events() err = %v, want ErrNoJournal", err)
	}
}

func TestBids_UnknownTask(t *testing.T) {
	n, _ := newNode(t)
	if _, err := n.Bids(5); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

// ─── Genesis ────────────────────────────────────────────────────────────────

func TestLoadGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	os.WriteFile(path, []byte("balances:\n  alice: 700\n  bob: 300\n"), 0644)

	g, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis() error: %v", err)
	}
	if g.Balances["alice"] != 700 || g.Balances["bob"] != 300 {
		t.Errorf("balances = %v", g.Balances)
	}
	if accs := g.Accounts(); len(accs) != 2 || accs[0] != "alice" {
		t.Errorf("Accounts() = %v", accs)
	}
}

func TestLoadGenesis_Invalid(t *testing.T) {
	dir := t.TempDir()
	zero := filepath.Join(dir, "zero.yaml")
	os.WriteFile(zero, []byte("balances:\n  alice: 0\n"), 0644)
	if _, err := LoadGenesis(zero); !errors.Is(err, domain.ErrZeroAmount) {
		t.Errorf("zero balance err = %v, want ErrZeroAmount", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("balances: [1, 2"), 0644)
	if _, err := LoadGenesis(bad); err == nil {
		t.Error("expected parse error")
	}
	if _, err := LoadGenesis(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}
