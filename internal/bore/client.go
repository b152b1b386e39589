package bore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"

	"github.com/google/uuid"

	"github.com/borui/borui/internal/tunnel"
)

// Client is a registered bore tunnel client. Each Connection announced on
// the control connection is served by dialing the server again, claiming
// the connection with Accept, and splicing it onto a fresh local connection.
type Client struct {
	control    *frameConn
	remoteAddr string
	localAddr  string
	remotePort int
	auth       *authenticator

	closers closerSet
}

// Dial connects to the control port, authenticates if a secret is set and
// requests a public port. It returns once the server has assigned one.
func Dial(ctx context.Context, spec tunnel.ClientSpec) (*Client, error) {
	c := &Client{
		remoteAddr: net.JoinHostPort(spec.RemoteServer, strconv.Itoa(spec.ControlPort)),
		localAddr:  net.JoinHostPort(spec.LocalHost, strconv.Itoa(spec.LocalPort)),
	}
	if spec.Secret != "" {
		c.auth = newAuthenticator(spec.Secret)
	}

	fc, err := c.dialControl(ctx)
	if err != nil {
		return nil, err
	}
	c.control = fc
	c.closers.add(fc)

	// A rejected handshake is reported by the server after our hello, so a
	// failed write still reads the reply before giving up.
	sendErr := fc.send(helloMsg(uint16(spec.RemotePort)))
	var msg serverMessage
	if err := fc.recvTimeout(&msg); err != nil {
		fc.Close()
		if sendErr != nil {
			return nil, fmt.Errorf("send hello: %w", sendErr)
		}
		if errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected EOF")
		}
		return nil, err
	}

	switch {
	case msg.Hello != nil:
		c.remotePort = int(*msg.Hello)
	case msg.Error != nil:
		fc.Close()
		return nil, fmt.Errorf("server error: %s", *msg.Error)
	case msg.Challenge != nil:
		fc.Close()
		return nil, errors.New("server requires authentication, but no client secret was provided")
	default:
		fc.Close()
		return nil, errors.New("unexpected initial non-hello message")
	}
	log.Printf("[bore] connected to server, listening at %s:%d", spec.RemoteServer, c.remotePort)
	return c, nil
}

func (c *Client) dialControl(ctx context.Context) (*frameConn, error) {
	d := net.Dialer{Timeout: networkTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", c.remoteAddr, err)
	}
	fc := newFrameConn(conn)
	if c.auth != nil {
		if err := c.auth.clientHandshake(fc); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return fc, nil
}

// RemotePort returns the public port assigned by the server.
func (c *Client) RemotePort() int { return c.remotePort }

// Run serves the control connection until the server closes it, ctx is
// cancelled or Close is called. A clean close by the server returns nil.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		var msg serverMessage
		err := c.control.recv(&msg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || c.closers.isClosed() {
				return nil
			}
			return err
		}

		switch {
		case msg.Heartbeat:
		case msg.Connection != nil:
			go c.forward(ctx, *msg.Connection)
		case msg.Error != nil:
			log.Printf("[bore] server error: %s", *msg.Error)
		case msg.Hello != nil:
			log.Printf("[bore] unexpected hello")
		case msg.Challenge != nil:
			log.Printf("[bore] unexpected challenge")
		}
	}
}

func (c *Client) forward(ctx context.Context, id uuid.UUID) {
	remote, err := c.dialControl(ctx)
	if err != nil {
		log.Printf("[bore] connection %s: %v", id, err)
		return
	}
	if !c.closers.add(remote) {
		return
	}
	defer c.closers.remove(remote)

	if err := remote.send(acceptMsg(id)); err != nil {
		log.Printf("[bore] connection %s: send accept: %v", id, err)
		remote.Close()
		return
	}

	d := net.Dialer{Timeout: networkTimeout}
	local, err := d.DialContext(ctx, "tcp", c.localAddr)
	if err != nil {
		log.Printf("[bore] connection %s: could not connect to %s: %v", id, c.localAddr, err)
		remote.Close()
		return
	}
	if !c.closers.add(local) {
		remote.Close()
		return
	}
	defer c.closers.remove(local)

	splice(remote, local)
}

// Close shuts the control connection and every forwarded connection.
func (c *Client) Close() error {
	c.closers.closeAll()
	return nil
}
