// Package reputation implements the bounded reputation ledger.
//
// Every account has a score in [0, domain.MaxScore], starting at the
// configured initial reputation the first time the account is referenced.
// Scores move through reviews, administrative slashes, and adjudicated
// disputes. All arithmetic saturates; nothing wraps.
//
// The task market only sees this package through domain.ReputationManager.
package reputation

import (
	"fmt"
	"math"
	"sync"

	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/infra/metrics"
)

type reviewKey struct {
	reviewer domain.AccountID
	reviewee domain.AccountID
}

// Ledger owns reputation records, reviews, and per-account history.
type Ledger struct {
	mu      sync.RWMutex
	cfg     Config
	records map[domain.AccountID]*domain.ReputationRecord
	history map[domain.AccountID]*ring
	reviews map[reviewKey]domain.Review
	seq     uint64
	events  domain.EventSink
}

var _ domain.ReputationManager = (*Ledger)(nil)

// NewLedger creates a reputation ledger.
func NewLedger(cfg Config) *Ledger {
	if cfg.InitialReputation > domain.MaxScore {
		cfg.InitialReputation = domain.MaxScore
	}
	return &Ledger{
		cfg:     cfg,
		records: make(map[domain.AccountID]*domain.ReputationRecord),
		history: make(map[domain.AccountID]*ring),
		reviews: make(map[reviewKey]domain.Review),
		events:  domain.DiscardEvents,
	}
}

// SetEventSink routes events raised by mutations.
func (l *Ledger) SetEventSink(sink domain.EventSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sink == nil {
		sink = domain.DiscardEvents
	}
	l.events = sink
}

// ─── Extrinsics ─────────────────────────────────────────────────────────────

// SubmitReview rates reviewee on behalf of the signed caller. The score
// moves up by rating*100, capped at MaxReputationDelta, clamped at MaxScore.
// A second review for the same pair overwrites the stored review and applies
// its delta on top of the first.
func (l *Ledger) SubmitReview(origin domain.Origin, reviewee domain.AccountID, rating uint8, comment []byte, taskID domain.TaskID) error {
	reviewer, err := origin.Signer()
	if err != nil {
		return err
	}
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating %d: %w", rating, domain.ErrInvalidRating)
	}
	if reviewer == reviewee {
		return domain.ErrSelfReview
	}
	if len(comment) > l.cfg.MaxCommentLength {
		return fmt.Errorf("comment length %d > %d: %w", len(comment), l.cfg.MaxCommentLength, domain.ErrCommentTooLong)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	delta := uint32(rating) * domain.RatingStep
	if delta > l.cfg.MaxReputationDelta {
		delta = l.cfg.MaxReputationDelta
	}

	seq := l.nextSeq()
	l.reviews[reviewKey{reviewer, reviewee}] = domain.Review{
		Reviewer: reviewer,
		Reviewee: reviewee,
		Rating:   rating,
		Comment:  append([]byte(nil), comment...),
		TaskID:   taskID,
		Seq:      seq,
	}

	rec := l.record(reviewee)
	old := rec.Score
	applied := l.adjust(rec, int64(delta))
	tid := taskID
	l.appendHistory(reviewee, domain.HistoryEntry{
		Seq:          seq,
		Kind:         domain.HistReview,
		Delta:        applied,
		ScoreAfter:   rec.Score,
		Counterparty: reviewer,
		TaskID:       &tid,
	})

	l.events.Emit(domain.EvtReviewSubmitted, map[string]any{
		"reviewer": reviewer,
		"reviewee": reviewee,
		"rating":   rating,
		"task_id":  taskID,
	})
	l.emitUpdated(reviewee, old, rec.Score)
	metrics.ReputationAdjustments.WithLabelValues(string(domain.HistReview)).Inc()
	return nil
}

// SlashReputation lowers target's score by amount, floored at zero.
// Only the root origin may slash.
func (l *Ledger) SlashReputation(origin domain.Origin, target domain.AccountID, amount uint32, reason []byte) error {
	if err := origin.EnsureRoot(); err != nil {
		return err
	}
	if len(reason) > l.cfg.MaxCommentLength {
		return fmt.Errorf("reason length %d > %d: %w", len(reason), l.cfg.MaxCommentLength, domain.ErrReasonTooLong)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.record(target)
	old := rec.Score
	applied := l.adjust(rec, -int64(amount))
	l.appendHistory(target, domain.HistoryEntry{
		Seq:        l.nextSeq(),
		Kind:       domain.HistSlash,
		Delta:      applied,
		ScoreAfter: rec.Score,
		Reason:     append([]byte(nil), reason...),
	})

	l.events.Emit(domain.EvtReputationSlashed, map[string]any{
		"account": target,
		"amount":  amount,
		"score":   rec.Score,
	})
	l.emitUpdated(target, old, rec.Score)
	metrics.ReputationAdjustments.WithLabelValues(string(domain.HistSlash)).Inc()
	return nil
}

// ─── ReputationManager ──────────────────────────────────────────────────────

// OnTaskCompleted bumps completion counters and total earned.
func (l *Ledger) OnTaskCompleted(worker domain.AccountID, earned domain.Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.record(worker)
	rec.TotalTasksCompleted = satAdd32(rec.TotalTasksCompleted, 1)
	rec.SuccessfulCompletions = satAdd32(rec.SuccessfulCompletions, 1)
	rec.TotalEarned = satAdd64(rec.TotalEarned, earned)

	l.appendHistory(worker, domain.HistoryEntry{
		Seq:        l.nextSeq(),
		Kind:       domain.HistTaskCompleted,
		ScoreAfter: rec.Score,
	})
}

// OnTaskPosted bumps the posted counter and total spent.
func (l *Ledger) OnTaskPosted(poster domain.AccountID, spent domain.Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := l.record(poster)
	rec.TotalTasksPosted = satAdd32(rec.TotalTasksPosted, 1)
	rec.TotalSpent = satAdd64(rec.TotalSpent, spent)
}

// OnDisputeResolved gives the winner DisputeWinBonus and takes
// DisputeLossPenalty from the loser, both clamped.
func (l *Ledger) OnDisputeResolved(winner, loser domain.AccountID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seq := l.nextSeq()

	w := l.record(winner)
	oldW := w.Score
	appliedW := l.adjust(w, int64(domain.DisputeWinBonus))
	w.DisputesWon = satAdd32(w.DisputesWon, 1)
	l.appendHistory(winner, domain.HistoryEntry{
		Seq:          seq,
		Kind:         domain.HistDisputeWon,
		Delta:        appliedW,
		ScoreAfter:   w.Score,
		Counterparty: loser,
	})

	lo := l.record(loser)
	oldL := lo.Score
	appliedL := l.adjust(lo, -int64(domain.DisputeLossPenalty))
	lo.DisputesLost = satAdd32(lo.DisputesLost, 1)
	l.appendHistory(loser, domain.HistoryEntry{
		Seq:          seq,
		Kind:         domain.HistDisputeLost,
		Delta:        appliedL,
		ScoreAfter:   lo.Score,
		Counterparty: winner,
	})

	l.emitUpdated(winner, oldW, w.Score)
	l.emitUpdated(loser, oldL, lo.Score)
	metrics.ReputationAdjustments.WithLabelValues(string(domain.HistDisputeWon)).Inc()
	metrics.ReputationAdjustments.WithLabelValues(string(domain.HistDisputeLost)).Inc()
}

// GetReputation returns the current score.
func (l *Ledger) GetReputation(account domain.AccountID) uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.peek(account).Score
}

// MeetsMinimumReputation reports whether score >= threshold.
func (l *Ledger) MeetsMinimumReputation(account domain.AccountID, threshold uint32) bool {
	return l.GetReputation(account) >= threshold
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Reputation returns a copy of the account's record. Unseen accounts report
// the initial score and zero counters.
func (l *Ledger) Reputation(account domain.AccountID) domain.ReputationRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.peek(account)
}

// Review returns the stored review for (reviewer, reviewee).
func (l *Ledger) Review(reviewer, reviewee domain.AccountID) (domain.Review, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.reviews[reviewKey{reviewer, reviewee}]
	if !ok {
		return domain.Review{}, false
	}
	r.Comment = append([]byte(nil), r.Comment...)
	return r, true
}

// History returns the account's retained history, oldest first.
func (l *Ledger) History(account domain.AccountID) []domain.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.history[account]
	if !ok {
		return nil
	}
	return h.entries()
}

// ─── Internals (caller holds l.mu) ──────────────────────────────────────────

// record materialises the account's record on first reference.
func (l *Ledger) record(account domain.AccountID) *domain.ReputationRecord {
	rec, ok := l.records[account]
	if !ok {
		rec = &domain.ReputationRecord{Account: account, Score: l.cfg.InitialReputation}
		l.records[account] = rec
	}
	return rec
}

func (l *Ledger) peek(account domain.AccountID) domain.ReputationRecord {
	if rec, ok := l.records[account]; ok {
		return *rec
	}
	return domain.ReputationRecord{Account: account, Score: l.cfg.InitialReputation}
}

// adjust applies delta to the score clamped to [0, MaxScore] and returns the
// change actually applied.
func (l *Ledger) adjust(rec *domain.ReputationRecord, delta int64) int64 {
	next := int64(rec.Score) + delta
	if next < 0 {
		next = 0
	}
	if next > int64(domain.MaxScore) {
		next = int64(domain.MaxScore)
	}
	applied := next - int64(rec.Score)
	rec.Score = uint32(next)
	return applied
}

func (l *Ledger) appendHistory(account domain.AccountID, e domain.HistoryEntry) {
	h, ok := l.history[account]
	if !ok {
		h = newRing(l.cfg.MaxHistoryLength)
		l.history[account] = h
	}
	h.push(e)
}

func (l *Ledger) nextSeq() uint64 {
	l.seq++
	return l.seq
}

func (l *Ledger) emitUpdated(account domain.AccountID, old, updated uint32) {
	l.events.Emit(domain.EvtReputationUpdated, map[string]any{
		"account":   account,
		"old_score": old,
		"new_score": updated,
	})
}

func satAdd32(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}

func satAdd64(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
