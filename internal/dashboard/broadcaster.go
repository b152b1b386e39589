// Package dashboard fans status updates out to connected dashboard
// sessions.
package dashboard

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Subscription is one dashboard session's view of the broadcast stream.
// C is closed once the subscriber has been removed.
type Subscription struct {
	ID uuid.UUID
	C  <-chan Message

	ch       chan Message
	done     chan struct{}
	doneOnce sync.Once
}

// Close marks the subscriber dead. The next Broadcast prunes it.
func (s *Subscription) Close() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Subscription) deliver(msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- msg:
		return true
	default:
		// Queue full: the session has stopped draining.
		return false
	}
}

// Broadcaster keeps the set of live subscribers. It knows nothing about the
// transport behind a subscription.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]*Subscription
	buffer int
}

// NewBroadcaster returns a Broadcaster whose subscribers queue up to buffer
// messages. Zero means DefaultBuffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{subs: make(map[uuid.UUID]*Subscription), buffer: buffer}
}

func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan Message, b.buffer)
	s := &Subscription{ID: uuid.New(), C: ch, ch: ch, done: make(chan struct{})}

	b.mu.Lock()
	b.subs[s.ID] = s
	n := len(b.subs)
	b.mu.Unlock()

	log.Printf("[dashboard] subscriber %s connected (%d live)", s.ID, n)
	return s
}

// Unsubscribe removes the subscriber. Unknown IDs are ignored.
func (b *Broadcaster) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	s, ok := b.subs[id]
	if ok {
		b.drop(s)
	}
	b.mu.Unlock()
	if ok {
		log.Printf("[dashboard] subscriber %s disconnected", id)
	}
}

// Broadcast delivers msg to every live subscriber and prunes any whose
// delivery fails. It never blocks and returns the number of deliveries.
func (b *Broadcaster) Broadcast(msg Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, s := range b.subs {
		if s.deliver(msg) {
			delivered++
			continue
		}
		b.drop(s)
		log.Printf("[dashboard] pruned dead subscriber %s", s.ID)
	}
	return delivered
}

// Len returns the number of registered subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// drop must be called with mu held.
func (b *Broadcaster) drop(s *Subscription) {
	delete(b.subs, s.ID)
	s.Close()
	close(s.ch)
}
