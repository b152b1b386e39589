package bore

import (
	"io"
	"net"
	"sync"
)

// closerSet tracks live connections and listeners so Close can tear down
// everything a Server or Client opened.
type closerSet struct {
	mu     sync.Mutex
	closed bool
	items  map[io.Closer]struct{}
}

// add registers c. If the set is already closed, c is closed and add
// returns false.
func (s *closerSet) add(c io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		c.Close()
		return false
	}
	if s.items == nil {
		s.items = make(map[io.Closer]struct{})
	}
	s.items[c] = struct{}{}
	return true
}

func (s *closerSet) remove(c io.Closer) {
	s.mu.Lock()
	delete(s.items, c)
	s.mu.Unlock()
}

func (s *closerSet) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *closerSet) closeAll() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	items := s.items
	s.items = nil
	s.mu.Unlock()

	for c := range items {
		c.Close()
	}
}

// splice copies in both directions until each side has finished, then
// closes both. Bytes already buffered on remote are forwarded first.
func splice(remote *frameConn, local net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(local, remote.r)
		closeWrite(local)
	}()
	go func() {
		defer wg.Done()
		io.Copy(remote.Conn, local)
		closeWrite(remote.Conn)
	}()
	wg.Wait()
	remote.Close()
	local.Close()
}

func closeWrite(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
		return
	}
	c.Close()
}
