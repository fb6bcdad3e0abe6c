package quorum

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/treekv/treekv/kv/config"
	"github.com/treekv/treekv/log"
)

// Conn is a client connection to one node of the roster. Two Conns are the same server when their addresses are equal.
//
// A Conn carries one round trip at a time. A round trip that fails or runs past its deadline closes the socket, since
// a late reply would otherwise be read as the answer to the next command. The next round trip dials again.
type Conn struct {
	Addr config.ServerAddr

	dialTimeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	buf  []byte
}

func NewConn(addr config.ServerAddr, cfg *config.ClientConfig) *Conn {
	return &Conn{
		Addr:        addr,
		dialTimeout: cfg.DialTimeout.Duration,
		buf:         make([]byte, cfg.BufferSize),
	}
}

// Connect dials the server if there is no open socket.
func (c *Conn) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Conn) connectLocked() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.Addr.String(), c.dialTimeout)
	if err != nil {
		return errors.Annotatef(err, "dial %s", c.Addr)
	}
	c.conn = conn
	return nil
}

// RoundTrip sends cmd and reads one reply, both bounded by the deadline of ctx.
func (c *Conn) RoundTrip(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return "", err
	}
	// No deadline on ctx clears any previous one.
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.closeLocked()
		return "", errors.Trace(err)
	}

	if _, err := c.conn.Write([]byte(cmd)); err != nil {
		c.closeLocked()
		return "", errors.Annotatef(err, "write to %s", c.Addr)
	}
	n, err := c.conn.Read(c.buf)
	if err != nil {
		c.closeLocked()
		return "", errors.Annotatef(err, "read from %s", c.Addr)
	}
	return string(c.buf[:n]), nil
}

func (c *Conn) closeLocked() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		log.Warnf("close connection to %s: %v", c.Addr, err)
	}
	c.conn = nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Conn) String() string {
	return "Connection[" + c.Addr.String() + "]"
}

func isTimeout(err error) bool {
	if ne, ok := errors.Cause(err).(net.Error); ok && ne.Timeout() {
		return true
	}
	return errors.Cause(err) == context.DeadlineExceeded
}
