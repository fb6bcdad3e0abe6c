// Package quorum is the client side of a treekv cluster. Every key is served by a majority of the roster, chosen per
// key by ranking servers on a hash of the key and the server address. Commands are sent to all servers responsible
// for them at once, and the reply given by the most servers wins.
//
// There is no coordination between servers: a transaction over several keys is a set of independent per-server
// transactions opened, committed or aborted together by the client.
package quorum

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/treekv/treekv/kv/command"
	"github.com/treekv/treekv/kv/config"
	"github.com/treekv/treekv/log"
)

// Client runs commands against a fixed roster. It keeps the current Operation open across commands while a
// transaction is in progress. A Client is not safe for concurrent use.
type Client struct {
	cfg     *config.ClientConfig
	servers []*Conn
	current *Operation
}

// NewClient creates a client over addrs and dials every server. A server that cannot be reached stays in the roster
// and is dialed again on its next round; until then it votes ServerError.
func NewClient(addrs []config.ServerAddr, cfg *config.ClientConfig) (*Client, error) {
	if len(addrs) == 0 {
		return nil, errors.New("quorum: empty roster")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	c := &Client{cfg: cfg}
	for _, addr := range addrs {
		conn := NewConn(addr, cfg)
		if err := conn.Connect(); err != nil {
			log.Warnf("server %s unreachable: %v", addr, err)
		}
		c.servers = append(c.servers, conn)
	}
	return c, nil
}

// Do runs one command line and returns the voted reply. Arity is checked locally, so malformed commands never reach
// the servers.
func (c *Client) Do(ctx context.Context, line string) string {
	req := command.Parse(line)
	if req.Kind == command.Unsupported {
		return command.UnsupportedCommand
	}
	if !req.Kind.SufficientArgs(len(req.Args)) {
		return command.InsufficientArguments
	}

	if c.current == nil || c.current.Done() {
		c.current = NewOperation(req.Kind, req.Keys(), c.servers, c.cfg.Timeout.Duration)
	}
	resp := c.current.Send(ctx, req, req.String())
	if c.current.Done() {
		c.current = nil
	}
	return resp
}

// InTransaction reports whether an operation is still open.
func (c *Client) InTransaction() bool {
	return c.current != nil
}

// Reset discards the open operation without telling the servers. Their transactions stay open until they expire or
// this client disconnects.
func (c *Client) Reset() {
	c.current = nil
}

func (c *Client) Servers() []config.ServerAddr {
	addrs := make([]config.ServerAddr, len(c.servers))
	for i, s := range c.servers {
		addrs[i] = s.Addr
	}
	return addrs
}

func (c *Client) Close() error {
	for _, s := range c.servers {
		s.Close()
	}
	return nil
}
