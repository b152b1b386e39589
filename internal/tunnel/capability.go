package tunnel

import (
	"context"
	"net/netip"
)

// Kind identifies which side of the tunnel an entity runs.
type Kind string

const (
	KindServer Kind = "server"
	KindClient Kind = "client"
)

// DefaultControlPort is the well-known port tunnel clients register on.
const DefaultControlPort = 7835

// Tunnel is an established listener or client session whose service loop
// has not been started yet.
//
// Run must not return until the tunnel stops on its own or ctx is
// cancelled. Close tears every resource down immediately and must cause a
// pending Run to return; it is safe to call more than once.
type Tunnel interface {
	Run(ctx context.Context) error
	Close() error
}

// ServerTunnel is a running tunnel server.
type ServerTunnel interface {
	Tunnel
	// ActiveConnections is the number of forwarded streams currently open.
	ActiveConnections() int
}

// ClientTunnel is a registered tunnel client.
type ClientTunnel interface {
	Tunnel
	// RemotePort is the public port the server assigned to this client.
	RemotePort() int
}

// Capability establishes tunnels. Listen and Connect may block for the
// duration of a handshake and must honour ctx for cancellation.
type Capability interface {
	Listen(ctx context.Context, spec ServerSpec) (ServerTunnel, error)
	Connect(ctx context.Context, spec ClientSpec) (ClientTunnel, error)
}

// ServerSpec is a validated server configuration.
type ServerSpec struct {
	BindAddr    netip.Addr
	BindTunnels netip.Addr
	ControlPort int
	MinPort     int
	MaxPort     int
	Secret      string
}

// ClientSpec is a validated client configuration.
type ClientSpec struct {
	LocalHost    string
	LocalPort    int
	RemoteServer string
	ControlPort  int
	// RemotePort 0 lets the server choose.
	RemotePort int
	Secret     string
}
