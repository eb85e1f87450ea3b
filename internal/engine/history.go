package engine

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// History is a bounded ring of adaptive adjustments, oldest first.
// Once full, adding drops from the head.
type History struct {
	mu  sync.Mutex
	q   *queue.Queue
	max int
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = 256
	}
	return &History{q: queue.New(), max: max}
}

func (h *History) Add(a tune.Action) {
	h.mu.Lock()
	h.q.Add(a)
	for h.q.Length() > h.max {
		h.q.Remove()
	}
	h.mu.Unlock()
}

// All returns the retained actions, oldest first.
func (h *History) All() []tune.Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]tune.Action, h.q.Length())
	for i := range out {
		out[i] = h.q.Get(i).(tune.Action)
	}
	return out
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.q.Length()
}
