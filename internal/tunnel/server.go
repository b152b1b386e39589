package tunnel

import (
	"context"
	"log"

	"github.com/borui/borui/internal/logutil"
)

// ServerManager owns the runtime state of every tunnel server entity.
type ServerManager struct {
	sup     *supervisor
	tunnels Capability
}

// NewServerManager creates a ServerManager backed by reg. The registry must
// not be shared with a ClientManager.
func NewServerManager(reg *Registry, tunnels Capability, cfg ManagerConfig) *ServerManager {
	return &ServerManager{
		sup:     newSupervisor(KindServer, reg, cfg),
		tunnels: tunnels,
	}
}

// Start validates cfg, opens the tunnel listener and supervises it until
// Stop. Failures leave the registry untouched.
func (m *ServerManager) Start(ctx context.Context, cfg ServerConfig) error {
	name := logutil.SanitizeForLog(cfg.Name)
	log.Printf("[tunnel] starting server %d (%s)", cfg.ID, name)

	if err := m.sup.reserve(cfg.ID); err != nil {
		return err
	}
	spec, err := cfg.Spec()
	if err != nil {
		m.sup.reg.Release(cfg.ID)
		return err
	}

	t, err := m.tunnels.Listen(ctx, spec)
	if err != nil {
		m.sup.reg.Release(cfg.ID)
		log.Printf("[tunnel] server %d (%s): listen failed: %v", cfg.ID, name, err)
		return &StartError{Kind: KindServer, ID: cfg.ID, Err: err}
	}

	m.sup.launch(cfg.ID, cfg.Name, t, 0)
	log.Printf("[tunnel] server %d (%s) running on control port %d, tunnels %d-%d",
		cfg.ID, name, spec.ControlPort, spec.MinPort, spec.MaxPort)
	return nil
}

// Stop cancels the server's task and removes its handle. It returns
// ErrNotRunning when the server has no handle.
func (m *ServerManager) Stop(id int64) error { return m.sup.stop(id) }

// Status returns a fresh snapshot, or false if the server is not running or
// its task has already finished.
func (m *ServerManager) Status(id int64) (Snapshot, bool) { return m.sup.status(id) }

// Running returns snapshots for every live server.
func (m *ServerManager) Running() []Snapshot { return m.sup.running() }

// ListFinished returns servers whose task ended outside of Stop.
func (m *ServerManager) ListFinished() []int64 { return m.sup.reg.ListFinished() }

// Reap removes the stale handle of a finished server.
func (m *ServerManager) Reap(id int64) (*Handle, bool) { return m.sup.reap(id) }

// StopAll stops every server. Used at shutdown.
func (m *ServerManager) StopAll() { m.sup.stopAll() }
