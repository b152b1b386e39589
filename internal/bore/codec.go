package bore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	// maxFrameSize bounds a single control frame, delimiter included.
	maxFrameSize = 256
	// networkTimeout applies to handshake reads, dials and frame writes.
	networkTimeout = 3 * time.Second
)

var errFrameTooLarge = errors.New("frame exceeds maximum length")

// frameConn reads and writes NUL-delimited JSON frames. Bytes buffered past
// the last frame stay in r, so proxying must read from r rather than Conn.
type frameConn struct {
	net.Conn
	r *bufio.Reader
}

func newFrameConn(c net.Conn) *frameConn {
	return &frameConn{Conn: c, r: bufio.NewReaderSize(c, maxFrameSize)}
}

// recv decodes the next frame into v. It returns io.EOF when the peer closed
// the connection cleanly between frames.
func (c *frameConn) recv(v any) error {
	line, err := c.r.ReadSlice(0)
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return errFrameTooLarge
	case errors.Is(err, io.EOF):
		if len(line) == 0 {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	case err != nil:
		return err
	}
	if err := json.Unmarshal(line[:len(line)-1], v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

// recvTimeout is recv bounded by networkTimeout.
func (c *frameConn) recvTimeout(v any) error {
	if err := c.SetReadDeadline(time.Now().Add(networkTimeout)); err != nil {
		return err
	}
	defer c.SetReadDeadline(time.Time{})
	return c.recv(v)
}

func (c *frameConn) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, 0)
	if err := c.SetWriteDeadline(time.Now().Add(networkTimeout)); err != nil {
		return err
	}
	defer c.SetWriteDeadline(time.Time{})
	_, err = c.Write(b)
	return err
}
