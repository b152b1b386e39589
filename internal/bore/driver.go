package bore

import (
	"context"

	"github.com/borui/borui/internal/tunnel"
)

// Driver implements tunnel.Capability over the bore protocol.
type Driver struct{}

var _ tunnel.Capability = Driver{}

// Listen binds the control port and returns a server ready to Run.
func (Driver) Listen(_ context.Context, spec tunnel.ServerSpec) (tunnel.ServerTunnel, error) {
	s := NewServer(spec)
	if err := s.Bind(); err != nil {
		return nil, err
	}
	return s, nil
}

// Connect registers with a remote bore server.
func (Driver) Connect(ctx context.Context, spec tunnel.ClientSpec) (tunnel.ClientTunnel, error) {
	c, err := Dial(ctx, spec)
	if err != nil {
		return nil, err
	}
	return c, nil
}
