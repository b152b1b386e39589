package notify

import (
	"sync"

	"github.com/borui/borui/internal/tunnel"
)

// maxEventsPerEntity bounds the history kept for one server or client.
const maxEventsPerEntity = 100

type entityKey struct {
	kind tunnel.Kind
	id   int64
}

// History keeps the most recent lifecycle events of every entity in memory.
// It is lost on restart.
type History struct {
	mu     sync.RWMutex
	events map[entityKey][]tunnel.Event
}

func NewHistory() *History {
	return &History{events: make(map[entityKey][]tunnel.Event)}
}

func (h *History) Record(ev tunnel.Event) {
	k := entityKey{ev.Kind, ev.ID}
	h.mu.Lock()
	defer h.mu.Unlock()
	events := append(h.events[k], ev)
	if len(events) > maxEventsPerEntity {
		events = events[len(events)-maxEventsPerEntity:]
	}
	h.events[k] = events
}

// Recent returns up to n of the newest events for an entity, oldest first.
// n <= 0 returns everything kept.
func (h *History) Recent(kind tunnel.Kind, id int64, n int) []tunnel.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	events := h.events[entityKey{kind, id}]
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	out := make([]tunnel.Event, len(events))
	copy(out, events)
	return out
}

// Forget drops the history of a deleted entity.
func (h *History) Forget(kind tunnel.Kind, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.events, entityKey{kind, id})
}
