package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/infra/metrics"
)

// ErrCircuitOpen is returned by a Guarded publisher while its breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState is the state of a circuit breaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // publishing normally
	BreakerOpen                         // tripped, publishes are skipped
	BreakerHalfOpen                     // probing after ResetTimeout
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures that trip the breaker
	ResetTimeout     time.Duration // time spent OPEN before probing
	HalfOpenMax      int           // successful probes needed to close again
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
		HalfOpenMax:      2,
	}
}

// Breaker is a thread-safe circuit breaker.
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	state     BreakerState
	failures  int
	successes int
	trippedAt time.Time
	trips     int
	now       func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a publish may go ahead.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state != BreakerOpen
}

// RecordSuccess notes a successful publish.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMax {
			b.state = BreakerClosed
			b.failures = 0
			b.successes = 0
		}
	case BreakerClosed:
		b.failures = 0
	}
}

// RecordFailure notes a failed publish and may trip the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.tripLocked()
		}
	case BreakerHalfOpen:
		b.tripLocked()
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state
}

// Trips is the number of times the breaker has opened.
func (b *Breaker) Trips() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

func (b *Breaker) tripLocked() {
	b.state = BreakerOpen
	b.trippedAt = b.now()
	b.trips++
	b.successes = 0
}

// advanceLocked moves OPEN to HALF_OPEN once ResetTimeout has elapsed.
func (b *Breaker) advanceLocked() {
	if b.state == BreakerOpen && b.now().Sub(b.trippedAt) >= b.cfg.ResetTimeout {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
}

// ─── Guarded publisher ──────────────────────────────────────────────────────

// Guarded wraps a publisher with a breaker so an unreachable sink stops
// adding its timeout to every committed call. Events skipped while the
// breaker is open are counted, not retried; the journal remains the source
// of truth.
type Guarded struct {
	name    string
	next    Publisher
	breaker *Breaker
}

// Guard wraps next under the given metric name.
func Guard(name string, next Publisher, cfg BreakerConfig) *Guarded {
	return &Guarded{name: name, next: next, breaker: NewBreaker(cfg)}
}

// Breaker exposes the underlying breaker, e.g. for health checks.
func (g *Guarded) Breaker() *Breaker { return g.breaker }

// Publish implements Publisher.
func (g *Guarded) Publish(ctx context.Context, events []domain.Event) error {
	defer func() {
		metrics.PublisherBreakerState.WithLabelValues(g.name).Set(float64(g.breaker.State()))
	}()

	if !g.breaker.Allow() {
		metrics.EventsPublished.WithLabelValues(g.name, "skipped").Add(float64(len(events)))
		return fmt.Errorf("%s: %w", g.name, ErrCircuitOpen)
	}
	if err := g.next.Publish(ctx, events); err != nil {
		g.breaker.RecordFailure()
		return err
	}
	g.breaker.RecordSuccess()
	return nil
}

// Check returns an error while the breaker is not closed. It matches the
// health checker's CheckFn shape.
func (g *Guarded) Check(context.Context) error {
	if st := g.breaker.State(); st != BreakerClosed {
		return fmt.Errorf("%s publisher breaker %s", g.name, st)
	}
	return nil
}
