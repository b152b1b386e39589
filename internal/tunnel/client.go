package tunnel

import (
	"context"
	"log"

	"github.com/borui/borui/internal/logutil"
)

// ClientManager owns the runtime state of every tunnel client entity.
type ClientManager struct {
	sup     *supervisor
	tunnels Capability
}

// NewClientManager creates a ClientManager backed by reg. The registry must
// not be shared with a ServerManager.
func NewClientManager(reg *Registry, tunnels Capability, cfg ManagerConfig) *ClientManager {
	return &ClientManager{
		sup:     newSupervisor(KindClient, reg, cfg),
		tunnels: tunnels,
	}
}

// Start validates cfg, registers with the remote tunnel server and
// supervises the session until Stop. It returns the public port the server
// assigned. Failures leave the registry untouched.
func (m *ClientManager) Start(ctx context.Context, cfg ClientConfig) (int, error) {
	name := logutil.SanitizeForLog(cfg.Name)
	log.Printf("[tunnel] starting client %d (%s)", cfg.ID, name)

	if err := m.sup.reserve(cfg.ID); err != nil {
		return 0, err
	}
	spec, err := cfg.Spec()
	if err != nil {
		m.sup.reg.Release(cfg.ID)
		return 0, err
	}

	t, err := m.tunnels.Connect(ctx, spec)
	if err != nil {
		m.sup.reg.Release(cfg.ID)
		log.Printf("[tunnel] client %d (%s): connect failed: %v", cfg.ID, name, err)
		return 0, &StartError{Kind: KindClient, ID: cfg.ID, Err: err}
	}

	port := t.RemotePort()
	m.sup.launch(cfg.ID, cfg.Name, t, port)
	log.Printf("[tunnel] client %d (%s) forwarding %s:%d -> %s:%d",
		cfg.ID, name, spec.LocalHost, spec.LocalPort, spec.RemoteServer, port)
	return port, nil
}

// Stop cancels the client's task and removes its handle. It returns
// ErrNotRunning when the client has no handle.
func (m *ClientManager) Stop(id int64) error { return m.sup.stop(id) }

// Status returns a fresh snapshot, or false if the client is not running or
// its task has already finished.
func (m *ClientManager) Status(id int64) (Snapshot, bool) { return m.sup.status(id) }

// Running returns snapshots for every live client.
func (m *ClientManager) Running() []Snapshot { return m.sup.running() }

// ListFinished returns clients whose task ended outside of Stop.
func (m *ClientManager) ListFinished() []int64 { return m.sup.reg.ListFinished() }

// Reap removes the stale handle of a finished client.
func (m *ClientManager) Reap(id int64) (*Handle, bool) { return m.sup.reap(id) }

// StopAll stops every client. Used at shutdown.
func (m *ClientManager) StopAll() { m.sup.stopAll() }
