package bore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/borui/borui/internal/tunnel"
)

const (
	heartbeatInterval = 500 * time.Millisecond
	// pendingTTL is how long an accepted public connection waits for the
	// client to claim it.
	pendingTTL = 10 * time.Second
	// portAttempts bounds random port selection when the client asks for
	// any port.
	portAttempts = 150
)

// Server is a bore control server. It listens on the control port, hands
// each registered client a public listener from its port range, and splices
// public connections onto data connections opened by the client.
type Server struct {
	spec tunnel.ServerSpec
	auth *authenticator

	ln      net.Listener
	closers closerSet
	active  atomic.Int64

	mu      sync.Mutex
	pending map[uuid.UUID]net.Conn
}

// NewServer returns a Server for spec. Call Bind before Run.
func NewServer(spec tunnel.ServerSpec) *Server {
	s := &Server{spec: spec, pending: make(map[uuid.UUID]net.Conn)}
	if spec.Secret != "" {
		s.auth = newAuthenticator(spec.Secret)
	}
	return s
}

// Bind opens the control listener.
func (s *Server) Bind() error {
	addr := netip.AddrPortFrom(s.spec.BindAddr, uint16(s.spec.ControlPort))
	ln, err := net.Listen("tcp", addr.String())
	if err != nil {
		return fmt.Errorf("listen on control port %s: %w", addr, err)
	}
	s.ln = ln
	s.closers.add(ln)
	log.Printf("[bore] control server listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound control address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// ActiveConnections returns the number of public connections currently
// being forwarded.
func (s *Server) ActiveConnections() int { return int(s.active.Load()) }

// Run accepts control connections until ctx is cancelled or Close is
// called.
func (s *Server) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		c, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.closers.isClosed() {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}
		go s.handle(ctx, c)
	}
}

// Close stops the control listener, every tunnel listener and every live
// connection.
func (s *Server) Close() error {
	s.closers.closeAll()
	s.mu.Lock()
	for id, c := range s.pending {
		c.Close()
		delete(s.pending, id)
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) handle(ctx context.Context, c net.Conn) {
	if !s.closers.add(c) {
		return
	}
	defer func() {
		s.closers.remove(c)
		c.Close()
	}()

	fc := newFrameConn(c)
	if s.auth != nil {
		if err := s.auth.serverHandshake(fc); err != nil {
			log.Printf("[bore] handshake from %s failed: %v", c.RemoteAddr(), err)
			fc.send(errorMsg(err.Error()))
			return
		}
	}

	var msg clientMessage
	if err := fc.recvTimeout(&msg); err != nil {
		if !errors.Is(err, io.EOF) {
			log.Printf("[bore] read from %s: %v", c.RemoteAddr(), err)
		}
		return
	}

	switch {
	case msg.Hello != nil:
		s.serveTunnel(ctx, fc, int(*msg.Hello))
	case msg.Accept != nil:
		s.accept(fc, *msg.Accept)
	case msg.Authenticate != nil:
		log.Printf("[bore] unexpected authenticate from %s", c.RemoteAddr())
	}
}

func (s *Server) serveTunnel(ctx context.Context, fc *frameConn, port int) {
	ln, err := s.bindTunnel(port)
	if err != nil {
		fc.send(errorMsg(err.Error()))
		return
	}
	if !s.closers.add(ln) {
		return
	}
	defer func() {
		s.closers.remove(ln)
		ln.Close()
	}()

	assigned := ln.Addr().(*net.TCPAddr).Port
	if err := fc.send(serverHelloMsg(uint16(assigned))); err != nil {
		return
	}
	log.Printf("[bore] new client %s on port %d", fc.RemoteAddr(), assigned)

	quit := make(chan struct{})
	defer close(quit)
	incoming := make(chan net.Conn)
	go func() {
		defer close(incoming)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			select {
			case incoming <- conn:
			case <-quit:
				conn.Close()
				return
			}
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fc.send(heartbeatMsg()); err != nil {
				log.Printf("[bore] client on port %d went away", assigned)
				return
			}
		case conn, ok := <-incoming:
			if !ok {
				return
			}
			id := uuid.New()
			s.park(id, conn)
			if err := fc.send(connectionMsg(id)); err != nil {
				return
			}
		}
	}
}

func (s *Server) bindTunnel(port int) (net.Listener, error) {
	if port == 0 {
		span := s.spec.MaxPort - s.spec.MinPort + 1
		for range portAttempts {
			p := s.spec.MinPort + rand.IntN(span)
			if ln, err := s.listenTunnel(p); err == nil {
				return ln, nil
			}
		}
		return nil, errors.New("failed to find an available port")
	}
	if port < s.spec.MinPort || port > s.spec.MaxPort {
		return nil, errors.New("client port number not in allowed range")
	}
	ln, err := s.listenTunnel(port)
	if err != nil {
		return nil, errors.New("port already in use")
	}
	return ln, nil
}

func (s *Server) listenTunnel(port int) (net.Listener, error) {
	addr := net.JoinHostPort(s.spec.BindTunnels.String(), strconv.Itoa(port))
	return net.Listen("tcp", addr)
}

// park holds conn until a client claims it with Accept or pendingTTL
// elapses.
func (s *Server) park(id uuid.UUID, conn net.Conn) {
	if s.closers.isClosed() {
		conn.Close()
		return
	}
	s.mu.Lock()
	s.pending[id] = conn
	s.mu.Unlock()

	time.AfterFunc(pendingTTL, func() {
		if c := s.take(id); c != nil {
			log.Printf("[bore] removed stale connection %s", id)
			c.Close()
		}
	})
}

func (s *Server) take(id uuid.UUID) net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.pending[id]
	if !ok {
		return nil
	}
	delete(s.pending, id)
	return c
}

func (s *Server) accept(fc *frameConn, id uuid.UUID) {
	conn := s.take(id)
	if conn == nil {
		log.Printf("[bore] missing connection %s", id)
		return
	}
	if !s.closers.add(conn) {
		return
	}
	defer s.closers.remove(conn)

	s.active.Add(1)
	defer s.active.Add(-1)
	splice(fc, conn)
}
