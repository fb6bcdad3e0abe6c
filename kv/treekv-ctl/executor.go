package main

import (
	"context"
	"time"

	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"github.com/treekv/treekv/kv/command"
	"github.com/treekv/treekv/kv/config"
	"github.com/treekv/treekv/kv/quorum"
)

// executor runs one command line and returns the reply text.
type executor interface {
	Do(ctx context.Context, line string) string
	Close() error
}

// direct talks to a single server with no voting.
type direct struct {
	conn    *quorum.Conn
	timeout time.Duration
}

func newDirect(addr config.ServerAddr, cfg *config.ClientConfig) (*direct, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	conn := quorum.NewConn(addr, cfg)
	if err := conn.Connect(); err != nil {
		return nil, errors.Trace(err)
	}
	return &direct{conn: conn, timeout: cfg.Timeout.Duration}, nil
}

func (d *direct) Do(ctx context.Context, line string) string {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	resp, err := d.conn.RoundTrip(ctx, line)
	if err != nil {
		if ctx.Err() != nil {
			return command.Timeout
		}
		return command.ServerError
	}
	return resp
}

func (d *direct) Close() error {
	return d.conn.Close()
}

// targetFlags selects either one server (--addr) or a roster group (--roster, --group).
type targetFlags struct {
	addr    string
	roster  string
	group   string
	timeout time.Duration
}

// register adds the target flags to cmd. An empty defaultRoster targets --addr unless --roster is given.
func (f *targetFlags) register(cmd *cobra.Command, defaultRoster string) {
	cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:6379", "server address, ignored when --roster is set")
	cmd.Flags().StringVar(&f.roster, "roster", defaultRoster, "roster file; commands go to a quorum of its servers")
	cmd.Flags().StringVar(&f.group, "group", config.DefaultGroup, "roster group")
	cmd.Flags().DurationVar(&f.timeout, "timeout", config.DefaultClientTimeout, "timeout of one command")
}

func (f *targetFlags) clientConfig() *config.ClientConfig {
	cfg := config.NewDefaultClientConfig()
	cfg.Timeout = config.NewDuration(f.timeout)
	return cfg
}

func (f *targetFlags) open() (executor, error) {
	cfg := f.clientConfig()
	if f.roster != "" {
		addrs, err := config.LoadRoster(f.roster, f.group)
		if err != nil {
			return nil, errors.Trace(err)
		}
		client, err := quorum.NewClient(addrs, cfg)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return client, nil
	}
	addr, err := config.ParseServerAddr(f.addr, nil)
	if err != nil {
		return nil, errors.Trace(err)
	}
	d, err := newDirect(addr, cfg)
	if err != nil {
		return nil, err
	}
	return d, nil
}
