package tunnel

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Handle is the runtime state of one running entity. It is created fully
// initialised by a manager and never persisted.
type Handle struct {
	ID        int64
	Kind      Kind
	Name      string
	StartedAt time.Time
	// AssignedPort is the server-assigned public port (clients only).
	AssignedPort int

	tunnel Tunnel
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	// ended is claimed by whichever of stop or the task's own exit gets
	// there first; only the winner emits the closing event.
	ended atomic.Bool
}

func (h *Handle) claimEnd() bool { return h.ended.CompareAndSwap(false, true) }

// Done is closed once the tunnel's service loop has returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Finished reports whether the service loop has returned.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err returns the error the service loop ended with, or nil while it is
// still running or if it ended cleanly.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Uptime is the time elapsed since the handle was created.
func (h *Handle) Uptime() time.Duration {
	return time.Since(h.StartedAt)
}

// Registry maps entity IDs to runtime handles. All operations are atomic
// with respect to each other; callers never lock.
//
// An ID is first reserved, then the handle is inserted once the tunnel is
// up. Reservations make two concurrent starts for the same ID resolve to a
// single handshake, and are invisible to Get.
type Registry struct {
	mu      sync.Mutex
	handles map[int64]*Handle
	pending map[int64]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[int64]*Handle),
		pending: make(map[int64]struct{}),
	}
}

// Reserve claims id for an upcoming Insert. It fails with ErrAlreadyRunning
// when id has a handle or another reservation.
func (r *Registry) Reserve(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[id]; ok {
		return ErrAlreadyRunning
	}
	if _, ok := r.pending[id]; ok {
		return ErrAlreadyRunning
	}
	r.pending[id] = struct{}{}
	return nil
}

// Release drops a reservation that will not be followed by Insert.
func (r *Registry) Release(id int64) {
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Insert stores h under id, consuming any reservation. It fails with
// ErrAlreadyRunning when id already has a handle.
func (r *Registry) Insert(id int64, h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[id]; ok {
		return ErrAlreadyRunning
	}
	delete(r.pending, id)
	r.handles[id] = h
	return nil
}

// Remove takes the handle for id out of the registry.
func (r *Registry) Remove(id int64) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok {
		return nil, ErrNotRunning
	}
	delete(r.handles, id)
	return h, nil
}

// RemoveFinished removes the handle for id only if its task has finished.
func (r *Registry) RemoveFinished(id int64) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok || !h.Finished() {
		return nil, false
	}
	delete(r.handles, id)
	return h, true
}

// Get returns the handle for id, if any.
func (r *Registry) Get(id int64) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// ListFinished returns the IDs, in ascending order, whose task has
// terminated but whose handle is still registered.
func (r *Registry) ListFinished() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, h := range r.handles {
		if h.Finished() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Handles returns every registered handle ordered by ID.
func (r *Registry) Handles() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b *Handle) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
