package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/clawchain/clawmarket/internal/domain"
	"github.com/clawchain/clawmarket/internal/infra/metrics"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Hub fans committed events out to in-process subscribers. A subscriber
// that falls behind loses events rather than stalling the node.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	buffer int
}

type subscriber struct {
	ch      chan domain.Event
	kinds   map[domain.EventKind]bool // nil = everything
	dropped uint64
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[int]*subscriber), buffer: buffer}
}

// Subscribe registers a subscriber for the given kinds (all kinds when none
// are given). The returned cancel func must be called to release it.
func (h *Hub) Subscribe(kinds ...domain.EventKind) (<-chan domain.Event, func()) {
	sub := &subscriber{ch: make(chan domain.Event, h.buffer)}
	if len(kinds) > 0 {
		sub.kinds = make(map[domain.EventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	metrics.SSESubscribers.Set(float64(len(h.subs)))
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			metrics.SSESubscribers.Set(float64(len(h.subs)))
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish implements Publisher. It never blocks and never fails.
func (h *Hub) Publish(_ context.Context, events []domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, e := range events {
		for _, sub := range h.subs {
			if sub.kinds != nil && !sub.kinds[e.Kind] {
				continue
			}
			select {
			case sub.ch <- e:
			default:
				sub.dropped++
			}
		}
	}
	metrics.EventsPublished.WithLabelValues("hub", "ok").Add(float64(len(events)))
	return nil
}

// ServeHTTP streams events as server-sent events until the client goes away.
// The optional ?kind= query parameter (repeatable) filters by event kind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var kinds []domain.EventKind
	for _, k := range r.URL.Query()["kind"] {
		kinds = append(kinds, domain.EventKind(k))
	}
	ch, cancel := h.Subscribe(kinds...)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				log.Printf("[events] encode %s: %v", e.Kind, err)
				continue
			}
			fmt.Fprintf(w, "id: %d-%d\nevent: %s\ndata: %s\n\n", e.Seq, e.Index, e.Kind, data)
			flusher.Flush()
		}
	}
}
