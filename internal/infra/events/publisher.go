// Package events delivers committed events to consumers outside the node:
// live SSE subscribers and, optionally, a Kafka topic.
package events

import (
	"context"
	"errors"

	"github.com/clawchain/clawmarket/internal/domain"
)

// Publisher receives the events committed by one dispatched call, in order.
type Publisher interface {
	Publish(ctx context.Context, events []domain.Event) error
}

// Multi fans a batch out to several publishers. Every publisher is tried;
// the returned error joins whatever failed.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
