package reputation

import "github.com/clawchain/clawmarket/internal/domain"

// ring is a fixed-capacity FIFO log. Once full, each push evicts the oldest
// entry. The backing array is allocated once at capacity.
type ring struct {
	buf  []domain.HistoryEntry
	head int // index of the oldest entry
	n    int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]domain.HistoryEntry, capacity)}
}

func (r *ring) push(e domain.HistoryEntry) {
	if len(r.buf) == 0 {
		return
	}
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = e
		r.n++
		return
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
}

// entries returns a copy, oldest first.
func (r *ring) entries() []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int { return r.n }
