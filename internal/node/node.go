// Package node is the execution host for the market. It stands where a
// chain runtime would: every state-changing call goes through Dispatch,
// which runs calls one at a time in a total order, numbers them, commits
// their events only on success, and journals them so state can be rebuilt
// by replay on the next boot.
package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/clawchain/clawmarket/internal/app/credit"
	"github.com/clawchain/clawmarket/internal/app/market"
	"github.com/clawchain/clawmarket/internal/app/reputation"
	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/infra/events"
	"github.com/clawchain/clawmarket/internal/infra/metrics"
	"github.com/clawchain/clawmarket/internal/infra/sqlite"
)

// ErrNoJournal is returned by journal queries on an ephemeral node.
var ErrNoJournal = errors.New("node has no journal")

// ErrHalted is returned by Dispatch once a journal write has failed. The
// in-memory state is then ahead of the journal, and any further call could
// depend on one that replay will not see.
var ErrHalted = errors.New("node halted after journal failure")

// Config holds the module parameters, fixed for the node's lifetime.
type Config struct {
	Market     market.Config
	Reputation reputation.Config
	// CreditJournal bounds the in-memory currency journal (0 = unbounded).
	CreditJournal int
}

// DefaultConfig returns the standard module parameters.
func DefaultConfig() Config {
	return Config{
		Market:        market.DefaultConfig(),
		Reputation:    reputation.DefaultConfig(),
		CreditJournal: 10000,
	}
}

// Receipt describes a committed call.
type Receipt struct {
	Seq    uint64         `json:"seq"`
	Method string         `json:"method"`
	TaskID *domain.TaskID `json:"task_id,omitempty"` // set by post_task
	Events []domain.Event `json:"events"`
}

// Node owns the module state and serialises access to it.
type Node struct {
	mu    sync.Mutex
	pubMu sync.Mutex // held across publish; taken before mu is released so events leave in seq order
	cfg   Config
	db    *sqlite.DB
	pub   events.Publisher

	genesis Genesis
	ledger  *credit.Ledger
	rep     *reputation.Ledger
	market  *market.Market
	buf     *eventBuffer

	seq    uint64
	halted error
	now    func() time.Time
}

// Open builds a node. When db is non-nil, the persisted genesis wins over
// the supplied one (it is stored on first boot) and the journal of
// successful calls is replayed to rebuild state. pub may be nil.
func Open(cfg Config, db *sqlite.DB, genesis Genesis, pub events.Publisher) (*Node, error) {
	n := &Node{cfg: cfg, db: db, pub: pub, now: time.Now}

	if db != nil {
		stored, err := db.Genesis()
		if err != nil {
			return nil, fmt.Errorf("load genesis: %w", err)
		}
		if len(stored) > 0 {
			genesis = Genesis{Balances: stored}
		} else if err := db.SetGenesis(genesis.Balances); err != nil {
			return nil, fmt.Errorf("store genesis: %w", err)
		}
	}
	if err := n.build(genesis); err != nil {
		return nil, err
	}

	if db != nil {
		if err := n.replay(); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// build creates fresh module state from genesis.
func (n *Node) build(g Genesis) error {
	n.genesis = g
	n.ledger = credit.NewLedger(n.cfg.CreditJournal)
	for _, acc := range g.Accounts() {
		if err := n.ledger.Deposit(acc, g.Balances[acc]); err != nil {
			return fmt.Errorf("genesis endowment %s: %w", acc, err)
		}
	}
	n.rep = reputation.NewLedger(n.cfg.Reputation)
	n.market = market.New(n.cfg.Market, n.rep, n.ledger)

	n.buf = &eventBuffer{}
	n.rep.SetEventSink(n.buf)
	n.market.SetEventSink(n.buf)
	return nil
}

// replay re-applies every successful journaled call in order. Events are
// not republished; they were persisted when the call first committed.
func (n *Node) replay() error {
	xs, err := n.db.ListExtrinsics(0, true)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	for _, x := range xs {
		origin, err := domain.ParseOrigin(x.Origin)
		if err != nil {
			return fmt.Errorf("replay #%d: %w", x.Seq, err)
		}
		call, err := DecodeCall(x.Method, x.Args)
		if err != nil {
			return fmt.Errorf("replay #%d: %w", x.Seq, err)
		}
		if _, err := n.apply(origin, call); err != nil {
			return fmt.Errorf("replay #%d %s diverged: %w", x.Seq, x.Method, err)
		}
		n.buf.reset()
	}

	last, err := n.db.LastSeq()
	if err != nil {
		return fmt.Errorf("load last seq: %w", err)
	}
	n.seq = last
	metrics.LastSeq.Set(float64(n.seq))
	if len(xs) > 0 {
		log.Printf("[node] replayed %d calls, last seq %d", len(xs), n.seq)
	}
	return nil
}

// Dispatch executes one call on behalf of origin. Calls are totally ordered.
// A failed call consumes a sequence number and is journaled, but changes no
// state and raises no events.
func (n *Node) Dispatch(ctx context.Context, origin domain.Origin, call Call) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	start := time.Now()
	method := call.Method()

	n.mu.Lock()
	if n.halted != nil {
		n.mu.Unlock()
		return Receipt{}, fmt.Errorf("%w: %v", ErrHalted, n.halted)
	}
	n.seq++
	seq := n.seq
	at := n.now()

	rcpt := Receipt{Seq: seq, Method: method}
	taskID, callErr := n.apply(origin, call)
	var committed []domain.Event
	if callErr == nil {
		committed = n.buf.commit(seq, at)
		rcpt.TaskID = taskID
		rcpt.Events = committed
	} else {
		n.buf.reset()
	}

	journalErr := n.journal(seq, origin, call, at, callErr, committed)
	if journalErr != nil {
		n.halted = fmt.Errorf("journal #%d %s: %w", seq, method, journalErr)
	}
	n.pubMu.Lock()
	n.mu.Unlock()
	defer n.pubMu.Unlock()

	metrics.LastSeq.Set(float64(seq))
	metrics.DispatchLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if callErr != nil {
		metrics.Extrinsics.WithLabelValues(method, "error").Inc()
		return rcpt, callErr
	}
	metrics.Extrinsics.WithLabelValues(method, "ok").Inc()

	if journalErr != nil {
		log.Printf("[node] journal #%d %s: %v; halting, restart to replay from the journal", seq, method, journalErr)
		return rcpt, fmt.Errorf("%w: journal: %v", ErrHalted, journalErr)
	}

	// The call has committed; publishing must not depend on the caller
	// staying connected. Publishers apply their own timeouts.
	if n.pub != nil && len(committed) > 0 {
		if err := n.pub.Publish(context.WithoutCancel(ctx), committed); err != nil {
			log.Printf("[node] publish events for #%d: %v", seq, err)
		}
	}
	return rcpt, nil
}

func (n *Node) journal(seq uint64, origin domain.Origin, call Call, at time.Time, callErr error, evts []domain.Event) error {
	if n.db == nil {
		return nil
	}
	args, err := EncodeCall(call)
	if err != nil {
		return err
	}
	x := domain.Extrinsic{
		Seq:    seq,
		Origin: origin.String(),
		Method: call.Method(),
		Args:   args,
		OK:     callErr == nil,
		At:     at,
	}
	if callErr != nil {
		x.Error = callErr.Error()
	}
	if err := n.db.InsertExtrinsic(x); err != nil {
		return err
	}
	return n.db.InsertEvents(evts)
}

// apply routes a call to the owning module.
func (n *Node) apply(origin domain.Origin, call Call) (*domain.TaskID, error) {
	switch c := deref(call).(type) {
	case PostTask:
		id, err := n.market.PostTask(origin, []byte(c.Title), []byte(c.Description), c.Reward, c.Deadline)
		if err != nil {
			return nil, err
		}
		return &id, nil
	case BidOnTask:
		return nil, n.market.BidOnTask(origin, c.TaskID, c.Amount, []byte(c.Proposal))
	case AssignTask:
		return nil, n.market.AssignTask(origin, c.TaskID, c.Bidder)
	case SubmitWork:
		return nil, n.market.SubmitWork(origin, c.TaskID, []byte(c.Proof))
	case ApproveWork:
		return nil, n.market.ApproveWork(origin, c.TaskID)
	case DisputeTask:
		return nil, n.market.DisputeTask(origin, c.TaskID, []byte(c.Reason))
	case ResolveDispute:
		return nil, n.market.ResolveDispute(origin, c.TaskID, c.Winner)
	case CancelTask:
		return nil, n.market.CancelTask(origin, c.TaskID)
	case SubmitReview:
		return nil, n.rep.SubmitReview(origin, c.Reviewee, c.Rating, []byte(c.Comment), c.TaskID)
	case SlashReputation:
		return nil, n.rep.SlashReputation(origin, c.Target, c.Amount, []byte(c.Reason))
	}
	return nil, fmt.Errorf("%T: %w", call, domain.ErrUnknownCall)
}

// deref accepts calls by value or by pointer.
func deref(c Call) Call {
	switch p := c.(type) {
	case *PostTask:
		return *p
	case *BidOnTask:
		return *p
	case *AssignTask:
		return *p
	case *SubmitWork:
		return *p
	case *ApproveWork:
		return *p
	case *DisputeTask:
		return *p
	case *ResolveDispute:
		return *p
	case *CancelTask:
		return *p
	case *SubmitReview:
		return *p
	case *SlashReputation:
		return *p
	}
	return c
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Halted returns the journal failure that stopped the node, or nil.
func (n *Node) Halted() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.halted
}

// Seq returns the last assigned sequence number.
func (n *Node) Seq() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seq
}

func (n *Node) Task(id domain.TaskID) (domain.Task, error) { return n.market.Task(id) }

func (n *Node) Bid(id domain.TaskID, bidder domain.AccountID) (domain.Bid, error) {
	return n.market.Bid(id, bidder)
}

// Bids returns the bids on a task, or ErrTaskNotFound.
func (n *Node) Bids(id domain.TaskID) ([]domain.Bid, error) {
	if _, err := n.market.Task(id); err != nil {
		return nil, err
	}
	return n.market.Bids(id), nil
}

func (n *Node) TaskCount() uint64 { return n.market.TaskCount() }

func (n *Node) Tasks(f market.Filter) []domain.Task { return n.market.List(f) }

func (n *Node) ActiveTasks(acc domain.AccountID) int { return n.market.ActiveTasks(acc) }

func (n *Node) Escrow() domain.Balance { return n.market.Escrow() }

// TotalReserved returns the currency held in reservation across accounts.
func (n *Node) TotalReserved() domain.Balance { return n.ledger.TotalReserved() }

// LedgerTotals returns the currency journal's debit and credit sums.
func (n *Node) LedgerTotals() (debits, credits uint64) { return n.ledger.Totals() }

func (n *Node) Reputation(acc domain.AccountID) domain.ReputationRecord {
	return n.rep.Reputation(acc)
}

func (n *Node) Review(reviewer, reviewee domain.AccountID) (domain.Review, bool) {
	return n.rep.Review(reviewer, reviewee)
}

func (n *Node) History(acc domain.AccountID) []domain.HistoryEntry { return n.rep.History(acc) }

func (n *Node) Balance(acc domain.AccountID) credit.AccountBalance { return n.ledger.Balance(acc) }

// LedgerHistory returns the newest currency journal entries for acc.
func (n *Node) LedgerHistory(acc domain.AccountID, limit int) []credit.Entry {
	return n.ledger.History(acc, limit)
}

// Genesis returns the genesis the node was built from.
func (n *Node) Genesis() Genesis { return n.genesis }

// Events returns committed events after afterSeq from the journal.
func (n *Node) Events(afterSeq uint64, limit int) ([]domain.Event, error) {
	if n.db == nil {
		return nil, ErrNoJournal
	}
	return n.db.ListEvents(afterSeq, limit)
}

// Extrinsics returns journaled calls after afterSeq, including failures.
func (n *Node) Extrinsics(afterSeq uint64) ([]domain.Extrinsic, error) {
	if n.db == nil {
		return nil, ErrNoJournal
	}
	return n.db.ListExtrinsics(afterSeq, false)
}
