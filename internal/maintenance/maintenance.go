// Package maintenance runs the periodic reconcile pass: it reaps tunnel
// tasks that ended on their own, persists their final status and publishes
// live status for everything still running.
package maintenance

import (
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/borui/borui/internal/dashboard"
	"github.com/borui/borui/internal/database"
	"github.com/borui/borui/internal/tunnel"
)

// Manager is the maintenance surface of a lifecycle manager.
type Manager interface {
	ListFinished() []int64
	Reap(id int64) (*tunnel.Handle, bool)
	Running() []tunnel.Snapshot
}

type Recorder interface {
	MarkServer(id int64, status, errMsg string) error
	MarkClient(id int64, status, errMsg string, assignedPort int) error
}

type Broadcaster interface {
	Broadcast(dashboard.Message) int
}

// Pruner drops expired in-memory state, such as login throttling entries.
type Pruner interface {
	Prune()
}

// Job reconciles both managers with the store.
type Job struct {
	Servers     Manager
	Clients     Manager
	Store       Recorder
	Broadcaster Broadcaster
	// Pruners are run at the end of every pass.
	Pruners []Pruner

	// mu keeps overlapping ticks from reaping the same handle twice.
	mu sync.Mutex
}

// Result summarises one pass.
type Result struct {
	Reaped    int
	Published int
}

// Run performs one reconcile pass.
func (j *Job) Run() Result {
	j.mu.Lock()
	defer j.mu.Unlock()

	var res Result
	res.Reaped += j.reap(tunnel.KindServer, j.Servers)
	res.Reaped += j.reap(tunnel.KindClient, j.Clients)
	res.Published += j.publish(tunnel.KindServer, j.Servers)
	res.Published += j.publish(tunnel.KindClient, j.Clients)
	for _, p := range j.Pruners {
		p.Prune()
	}
	if res.Reaped > 0 {
		log.Printf("[maintenance] reaped %d finished tunnel(s)", res.Reaped)
	}
	return res
}

func (j *Job) reap(kind tunnel.Kind, m Manager) int {
	n := 0
	for _, id := range m.ListFinished() {
		h, ok := m.Reap(id)
		if !ok {
			continue
		}
		n++

		rec := dashboard.RecordStatus{ID: id, Status: database.StatusStopped}
		if err := h.Err(); err != nil {
			rec.Status = database.StatusError
			rec.ErrorMessage = err.Error()
		}
		if kind == tunnel.KindServer {
			j.Store.MarkServer(id, rec.Status, rec.ErrorMessage)
		} else {
			j.Store.MarkClient(id, rec.Status, rec.ErrorMessage, 0)
		}
		j.Broadcaster.Broadcast(dashboard.StatusOf(kind, rec))
	}
	return n
}

func (j *Job) publish(kind tunnel.Kind, m Manager) int {
	snaps := m.Running()
	for _, s := range snaps {
		j.Broadcaster.Broadcast(dashboard.StatusOf(kind, s))
	}
	return len(snaps)
}

// Schedule registers the job on a new cron scheduler and starts it. The
// caller stops the returned scheduler at shutdown.
func Schedule(spec string, job *Job) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { job.Run() }); err != nil {
		return nil, fmt.Errorf("schedule maintenance %q: %w", spec, err)
	}
	c.Start()
	log.Printf("[maintenance] scheduled %q", spec)
	return c, nil
}
