// manager.go holds the supervision logic shared by ServerManager and
// ClientManager.
//
// Each running entity owns exactly one goroutine executing Tunnel.Run. Stop
// removes the handle, cancels the goroutine's context, closes the tunnel and
// waits at most StopGrace for the goroutine to notice. Tasks that end on
// their own stay registered (and keep blocking Start) until Reap removes
// them; Status already reports them as not running.

package tunnel

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/borui/borui/internal/logutil"
)

// DefaultStopGrace is how long Stop waits for a cancelled task to unwind.
const DefaultStopGrace = 100 * time.Millisecond

// ManagerConfig configures a ServerManager or ClientManager.
type ManagerConfig struct {
	// StopGrace bounds how long Stop waits after cancelling a task.
	// Zero means DefaultStopGrace.
	StopGrace time.Duration
	// Events receives lifecycle events. Optional.
	Events EventSink
}

type supervisor struct {
	kind   Kind
	reg    *Registry
	grace  time.Duration
	events EventSink
}

func newSupervisor(kind Kind, reg *Registry, cfg ManagerConfig) *supervisor {
	grace := cfg.StopGrace
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	return &supervisor{kind: kind, reg: reg, grace: grace, events: cfg.Events}
}

func (s *supervisor) reserve(id int64) error {
	if err := s.reg.Reserve(id); err != nil {
		return alreadyRunning(s.kind, id)
	}
	return nil
}

// launch registers a handle for t, announces it and spawns its service
// loop. The caller must hold a reservation for id, so the insert cannot
// collide and no observer ever sees a handle without a task.
func (s *supervisor) launch(id int64, name string, t Tunnel, assignedPort int) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ID:           id,
		Kind:         s.kind,
		Name:         name,
		StartedAt:    time.Now(),
		AssignedPort: assignedPort,
		tunnel:       t,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	if err := s.reg.Insert(id, h); err != nil {
		log.Printf("[tunnel] %s %d: registry insert failed: %v", s.kind, id, err)
		cancel()
		t.Close()
		close(h.done)
		return h
	}
	s.connected(h)
	go s.supervise(ctx, h)
	return h
}

func (s *supervisor) supervise(ctx context.Context, h *Handle) {
	err := h.tunnel.Run(ctx)
	h.err = err
	close(h.done)

	name := logutil.SanitizeForLog(h.Name)
	if !h.claimEnd() {
		log.Printf("[tunnel] %s %d (%s): task cancelled", s.kind, h.ID, name)
		return
	}

	ev := Event{
		Kind:   s.kind,
		ID:     h.ID,
		Name:   h.Name,
		Uptime: int64(h.Uptime().Seconds()),
		Time:   time.Now().UTC(),
	}
	if err != nil {
		log.Printf("[tunnel] %s %d (%s): task failed: %v", s.kind, h.ID, name, err)
		ev.Type = EventError
		ev.Detail = err.Error()
	} else {
		log.Printf("[tunnel] %s %d (%s): task ended", s.kind, h.ID, name)
		ev.Type = EventDisconnected
		ev.Detail = "tunnel closed"
	}
	s.emit(ev)
}

func (s *supervisor) connected(h *Handle) {
	s.emit(Event{
		Kind:         s.kind,
		ID:           h.ID,
		Name:         h.Name,
		Type:         EventConnected,
		AssignedPort: h.AssignedPort,
		Time:         time.Now().UTC(),
	})
}

func (s *supervisor) stop(id int64) error {
	h, err := s.reg.Remove(id)
	if err != nil {
		return notRunning(s.kind, id)
	}

	uptime := h.Uptime()
	// A task that ended on its own has already reported its exit.
	ended := !h.claimEnd()
	h.cancel()
	if err := h.tunnel.Close(); err != nil {
		log.Printf("[tunnel] %s %d: close: %v", s.kind, id, err)
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-h.done:
	case <-timer.C:
		log.Printf("[tunnel] %s %d: task still unwinding after %s", s.kind, id, s.grace)
	}

	log.Printf("[tunnel] %s %d (%s): stopped", s.kind, id, logutil.SanitizeForLog(h.Name))
	if ended {
		return nil
	}
	s.emit(Event{
		Kind:   s.kind,
		ID:     id,
		Name:   h.Name,
		Type:   EventDisconnected,
		Detail: "stopped",
		Uptime: int64(uptime.Seconds()),
		Time:   time.Now().UTC(),
	})
	return nil
}

func (s *supervisor) status(id int64) (Snapshot, bool) {
	h, ok := s.reg.Get(id)
	if !ok || h.Finished() {
		return Snapshot{}, false
	}
	return snapshotOf(h), true
}

func (s *supervisor) running() []Snapshot {
	var out []Snapshot
	for _, h := range s.reg.Handles() {
		if !h.Finished() {
			out = append(out, snapshotOf(h))
		}
	}
	return out
}

func (s *supervisor) reap(id int64) (*Handle, bool) {
	h, ok := s.reg.RemoveFinished(id)
	if ok {
		log.Printf("[tunnel] %s %d: reaped finished task (err=%v)", s.kind, id, h.Err())
	}
	return h, ok
}

func (s *supervisor) stopAll() {
	for _, h := range s.reg.Handles() {
		if err := s.stop(h.ID); err != nil && !errors.Is(err, ErrNotRunning) {
			log.Printf("[tunnel] %s %d: stop: %v", s.kind, h.ID, err)
		}
	}
}

func (s *supervisor) emit(ev Event) {
	if s.events != nil {
		s.events(ev)
	}
}
