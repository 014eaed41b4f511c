package transport

import (
	"net"
	"sync/atomic"

	"github.com/google/uuid"
)

// Conn wraps a live direct TCP connection. The reader goroutine marks it
// closed on EOF or error; the store's lazy presence reconciliation evicts
// closed handles the next time "online" is probed.
type Conn struct {
	ID     uuid.UUID
	conn   net.Conn
	host   string
	closed atomic.Bool
}

func NewConn(c net.Conn) *Conn {
	host, _, err := net.SplitHostPort(c.RemoteAddr().String())
	if err != nil {
		host = c.RemoteAddr().String()
	}
	return &Conn{
		ID:   uuid.New(),
		conn: c,
		host: host,
	}
}

// RemoteHost is the peer's address without the ephemeral port. Outbound
// pushes dial it fresh on the user port.
func (c *Conn) RemoteHost() string {
	return c.host
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// MarkClosed flags the handle without tearing down the socket; the owning
// reader does that itself.
func (c *Conn) MarkClosed() {
	c.closed.Store(true)
}

func (c *Conn) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}
