package node

import (
	"time"

	"github.com/google/uuid"

	"github.com/clawchain/clawmarket/internal/domain"
)

// eventBuffer collects events raised while one call executes. They are
// stamped and released only if the call commits.
type eventBuffer struct {
	pending []pendingEvent
}

type pendingEvent struct {
	kind    domain.EventKind
	payload map[string]any
}

// Emit implements domain.EventSink.
func (b *eventBuffer) Emit(kind domain.EventKind, payload map[string]any) {
	b.pending = append(b.pending, pendingEvent{kind: kind, payload: payload})
}

func (b *eventBuffer) reset() { b.pending = b.pending[:0] }

// commit stamps the buffered events with seq and drains the buffer.
func (b *eventBuffer) commit(seq uint64, at time.Time) []domain.Event {
	if len(b.pending) == 0 {
		return nil
	}
	out := make([]domain.Event, len(b.pending))
	for i, p := range b.pending {
		out[i] = domain.Event{
			ID:      uuid.NewString(),
			Seq:     seq,
			Index:   i,
			Kind:    p.kind,
			Payload: normalize(p.payload),
			At:      at,
		}
	}
	b.reset()
	return out
}

// normalize converts domain-typed payload values to plain JSON-friendly
// ones so published and persisted payloads look the same.
func normalize(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case domain.AccountID:
			out[k] = string(x)
		case *domain.AccountID:
			if x != nil {
				out[k] = string(*x)
			}
		case domain.TaskStatus:
			out[k] = string(x)
		case domain.Text:
			out[k] = string(x)
		case []byte:
			out[k] = string(x)
		default:
			out[k] = v
		}
	}
	return out
}
