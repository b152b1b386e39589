package tunnel

// Coarse states reported by a live snapshot. Stopped and error are never
// produced here: an entity without a live handle has no snapshot.
const (
	StateRunning   = "running"
	StateConnected = "connected"
)

// Snapshot is the live state of one running entity, computed on demand.
type Snapshot struct {
	ID            int64  `json:"id"`
	Kind          Kind   `json:"-"`
	State         string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	// AssignedPort is set for clients.
	AssignedPort *int `json:"assigned_port,omitempty"`
	// ActiveConnections is set for servers.
	ActiveConnections *int `json:"active_connections,omitempty"`
}

func snapshotOf(h *Handle) Snapshot {
	s := Snapshot{
		ID:            h.ID,
		Kind:          h.Kind,
		UptimeSeconds: int64(h.Uptime().Seconds()),
	}
	switch h.Kind {
	case KindServer:
		s.State = StateRunning
		n := 0
		if st, ok := h.tunnel.(ServerTunnel); ok {
			n = st.ActiveConnections()
		}
		s.ActiveConnections = &n
	case KindClient:
		s.State = StateConnected
		port := h.AssignedPort
		s.AssignedPort = &port
	}
	return s
}
