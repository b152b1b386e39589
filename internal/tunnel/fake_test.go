package tunnel

import (
	"context"
	"sync"
	"time"
)

type fakeTunnel struct {
	port  int
	conns int

	closed    chan struct{}
	closeOnce sync.Once
	exit      chan error
}

func newFakeTunnel(port int) *fakeTunnel {
	return &fakeTunnel{
		port:   port,
		closed: make(chan struct{}),
		exit:   make(chan error, 1),
	}
}

func (f *fakeTunnel) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.closed:
		return nil
	case err := <-f.exit:
		return err
	}
}

func (f *fakeTunnel) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTunnel) RemotePort() int        { return f.port }
func (f *fakeTunnel) ActiveConnections() int { return f.conns }

type fakeCapability struct {
	mu      sync.Mutex
	delay   time.Duration
	err     error
	port    int
	calls   int
	tunnels []*fakeTunnel
}

func (c *fakeCapability) open() (*fakeTunnel, error) {
	c.mu.Lock()
	c.calls++
	delay, err, port := c.delay, c.err, c.port
	c.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	t := newFakeTunnel(port)
	c.mu.Lock()
	c.tunnels = append(c.tunnels, t)
	c.mu.Unlock()
	return t, nil
}

func (c *fakeCapability) Listen(_ context.Context, _ ServerSpec) (ServerTunnel, error) {
	return c.open()
}

func (c *fakeCapability) Connect(_ context.Context, _ ClientSpec) (ClientTunnel, error) {
	return c.open()
}

func (c *fakeCapability) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *fakeCapability) last() *fakeTunnel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tunnels[len(c.tunnels)-1]
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) sink(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *eventRecorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}
