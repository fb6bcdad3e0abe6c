package quorum

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spaolacci/murmur3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treekv/treekv/kv/command"
	"github.com/treekv/treekv/kv/config"
	"github.com/treekv/treekv/kv/server"
	"github.com/treekv/treekv/kv/storage"
)

func TestVote(t *testing.T) {
	assert.Equal(t, "a", Vote([]string{"a"}))
	assert.Equal(t, "b", Vote([]string{"a", "b", "b"}))
	// Ties go to the reply seen first.
	assert.Equal(t, "a", Vote([]string{"a", "b", "b", "a"}))
	assert.Equal(t, "x", Vote([]string{"x", "y", "z"}))
	assert.Equal(t, command.Timeout, Vote([]string{command.Timeout, command.Timeout, "v"}))
	assert.Equal(t, "", Vote(nil))
}

func TestQuorumSize(t *testing.T) {
	for n, size := range map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 6: 4, 7: 4} {
		assert.Equal(t, size, QuorumSize(n), "roster of %d", n)
	}
}

func fakeConns(n int) []*Conn {
	cfg := config.NewDefaultClientConfig()
	conns := make([]*Conn, n)
	for i := range conns {
		conns[i] = NewConn(config.ServerAddr{Host: "127.0.0.1", Port: fmt.Sprint(6379 + i)}, cfg)
	}
	return conns
}

func TestRank(t *testing.T) {
	conns := fakeConns(5)
	assert.Equal(t, int32(murmur3.Sum32([]byte("apple127.0.0.1:6379"))), keyHash("apple", "127.0.0.1", "6379"))

	for _, key := range []string{"1", "apple", "zebra", "k42"} {
		ranked := Rank(key, conns)
		require.Len(t, ranked, 5)
		for i := 1; i < len(ranked); i++ {
			prev := keyHash(key, ranked[i-1].Addr.Host, ranked[i-1].Addr.Port)
			cur := keyHash(key, ranked[i].Addr.Host, ranked[i].Addr.Port)
			assert.True(t, prev >= cur)
		}
		// Deterministic for a fixed key and roster.
		assert.Equal(t, ranked, Rank(key, conns))
	}
}

func TestOperationQuorums(t *testing.T) {
	conns := fakeConns(5)
	op := NewOperation(command.BeginTransaction, []string{"a", "b", "a", "c"}, conns, time.Second)
	assert.False(t, op.Done())
	assert.Equal(t, []string{"a", "b", "c"}, op.keys)
	for _, k := range op.keys {
		q := op.Quorum(k)
		assert.Len(t, q, 3)
		assert.Equal(t, Rank(k, conns)[:3], q)
	}
	assert.Nil(t, op.Quorum("d"))

	assert.True(t, NewOperation(command.Read, []string{"a"}, conns, time.Second).Done())
	assert.True(t, NewOperation(command.CommitTransaction, nil, conns, time.Second).Done())
}

type cluster struct {
	servers []*server.Server
	stores  []*storage.MemStorage
	addrs   []config.ServerAddr
}

func startCluster(t *testing.T, n int) (*cluster, func()) {
	c := &cluster{}
	for i := 0; i < n; i++ {
		conf := config.NewTestConfig(os.TempDir())
		store := storage.NewMemStorage()
		srv := server.NewServer(conf, store)
		require.Nil(t, srv.Start())
		addr, err := config.ParseServerAddr(srv.Addr(), nil)
		require.Nil(t, err)
		c.servers = append(c.servers, srv)
		c.stores = append(c.stores, store)
		c.addrs = append(c.addrs, addr)
	}
	return c, func() {
		for _, srv := range c.servers {
			srv.Stop()
		}
	}
}

func (c *cluster) holders(key string) int {
	n := 0
	for _, s := range c.stores {
		if ok, _ := s.Contains(key); ok {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, addrs []config.ServerAddr) *Client {
	cfg := config.NewDefaultClientConfig()
	cfg.Timeout = config.NewDuration(2 * time.Second)
	client, err := NewClient(addrs, cfg)
	require.Nil(t, err)
	return client
}

func TestClientKeyedCommands(t *testing.T) {
	c, cleanup := startCluster(t, 3)
	defer cleanup()
	client := newTestClient(t, c.addrs)
	defer client.Close()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("key%d", i)
		assert.Equal(t, command.Null, client.Do(ctx, "PUT "+k+" v"+k))
		assert.Equal(t, 2, c.holders(k), k)
	}
	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("key%d", i)
		assert.Equal(t, "v"+k, client.Do(ctx, "get "+k))
		assert.Equal(t, "true", client.Do(ctx, "CONTAINS "+k))
	}
	assert.False(t, client.InTransaction())

	assert.Equal(t, command.InsufficientArguments, client.Do(ctx, "PUT x"))
	assert.Equal(t, command.UnsupportedCommand, client.Do(ctx, "DROP x"))
	assert.Equal(t, command.TransactionNotExist, client.Do(ctx, "COMMIT"))
	assert.False(t, client.InTransaction())
}

func TestClientTransaction(t *testing.T) {
	c, cleanup := startCluster(t, 3)
	defer cleanup()
	client := newTestClient(t, c.addrs)
	defer client.Close()
	ctx := context.Background()

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	resp := client.Do(ctx, "TRANSACT "+strings.Join(keys, " "))
	assert.True(t, strings.HasPrefix(resp, "Transaction started & expires at "), resp)
	assert.True(t, client.InTransaction())
	assert.Equal(t, command.TransactionInProgress, client.Do(ctx, "TRANSACT k"))

	assert.Equal(t, command.KeyNotInQuorum, client.Do(ctx, "GET z"))
	for _, k := range keys {
		assert.Equal(t, command.Acknowledged, client.Do(ctx, "PUT "+k+" "+k+k))
	}
	assert.Equal(t, 0, c.holders("a"))

	resp = client.Do(ctx, "COMMIT")
	assert.True(t, strings.HasPrefix(resp, command.Success), resp)
	assert.False(t, client.InTransaction())
	for _, k := range keys {
		assert.Equal(t, 2, c.holders(k), k)
		assert.Equal(t, k+k, client.Do(ctx, "GET "+k))
	}
	for _, srv := range c.servers {
		assert.Equal(t, 0, srv.Latches.Len())
	}
}

func TestClientSingleKeyTransaction(t *testing.T) {
	c, cleanup := startCluster(t, 3)
	defer cleanup()
	client := newTestClient(t, c.addrs)
	defer client.Close()
	ctx := context.Background()

	resp := client.Do(ctx, "TRANSACT a a")
	assert.True(t, strings.HasPrefix(resp, command.DuplicateKeys+"\n"), resp)
	assert.Equal(t, command.EmptyTransaction, client.Do(ctx, "COMMIT"))
	assert.True(t, client.InTransaction())
	assert.Equal(t, command.Acknowledged, client.Do(ctx, "ABORT"))
	assert.False(t, client.InTransaction())
}

func TestClientLockedBeginClosesOperation(t *testing.T) {
	c, cleanup := startCluster(t, 3)
	defer cleanup()
	ctx := context.Background()
	first := newTestClient(t, c.addrs)
	defer first.Close()
	second := newTestClient(t, c.addrs)
	defer second.Close()

	assert.True(t, strings.HasPrefix(first.Do(ctx, "TRANSACT k"), "Transaction started"))
	assert.Equal(t, command.KeyLocked, second.Do(ctx, "TRANSACT k"))
	assert.False(t, second.InTransaction())
	assert.Equal(t, command.KeyLocked, second.Do(ctx, "GET k"))

	assert.Equal(t, command.Acknowledged, first.Do(ctx, "ABORT"))
	assert.Equal(t, command.Null, second.Do(ctx, "GET k"))
}

func sameServers(a, b []*Conn) bool {
	if len(a) != len(b) {
		return false
	}
	in := make(map[string]bool, len(a))
	for _, c := range a {
		in[c.Addr.String()] = true
	}
	for _, c := range b {
		if !in[c.Addr.String()] {
			return false
		}
	}
	return true
}

func inQuorum(q []*Conn, c *Conn) bool {
	for _, s := range q {
		if s == c {
			return true
		}
	}
	return false
}

// keyOutsideQuorum finds a key whose quorum is not the quorum of key.
func keyOutsideQuorum(t *testing.T, key string, servers []*Conn) string {
	size := QuorumSize(len(servers))
	q := Rank(key, servers)[:size]
	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("y%d", i)
		if !sameServers(q, Rank(k, servers)[:size]) {
			return k
		}
	}
	t.Fatalf("every candidate shares the quorum of %s", key)
	return ""
}

func TestClientPartialLockConflictReleasesLatches(t *testing.T) {
	c, cleanup := startCluster(t, 3)
	defer cleanup()
	ctx := context.Background()
	first := newTestClient(t, c.addrs)
	defer first.Close()
	second := newTestClient(t, c.addrs)
	defer second.Close()
	third := newTestClient(t, c.addrs)
	defer third.Close()

	y := keyOutsideQuorum(t, "x", first.servers)
	xq := Rank("x", first.servers)[:QuorumSize(3)]

	assert.True(t, strings.HasPrefix(first.Do(ctx, "TRANSACT x"), "Transaction started"))
	// The quorum of x refuses, the server that only holds y accepts and is then aborted.
	assert.Equal(t, command.KeyLocked, second.Do(ctx, "TRANSACT x "+y))
	assert.False(t, second.InTransaction())
	for i, srv := range c.servers {
		if inQuorum(xq, first.servers[i]) {
			assert.Equal(t, []string{"x"}, srv.Latches.Keys(), srv.Addr())
		} else {
			assert.Equal(t, 0, srv.Latches.Len(), srv.Addr())
		}
	}
	assert.Equal(t, command.Null, third.Do(ctx, "GET "+y))

	assert.Equal(t, command.Acknowledged, first.Do(ctx, "ABORT"))
	for _, srv := range c.servers {
		assert.Equal(t, 0, srv.Latches.Len(), srv.Addr())
	}
	assert.Equal(t, command.Null, third.Do(ctx, "GET x"))
}

func TestOperationHolders(t *testing.T) {
	c, cleanup := startCluster(t, 3)
	defer cleanup()
	ctx := context.Background()
	client := newTestClient(t, c.addrs)
	defer client.Close()

	y := keyOutsideQuorum(t, "x", client.servers)
	req := command.Parse("TRANSACT x " + y)
	op := NewOperation(req.Kind, req.Keys(), client.servers, 2*time.Second)
	assert.Empty(t, op.Holders())

	assert.True(t, strings.HasPrefix(op.Send(ctx, req, req.String()), "Transaction started"))
	// Every server holds x or y.
	assert.Equal(t, client.servers, op.Holders())

	req = command.Parse("COMMIT")
	assert.Equal(t, command.EmptyTransaction, op.Send(ctx, req, req.String()))
	assert.False(t, op.Done())
	assert.Len(t, op.Holders(), 3)

	req = command.Parse("ABORT")
	assert.Equal(t, command.Acknowledged, op.Send(ctx, req, req.String()))
	assert.True(t, op.Done())
	assert.Empty(t, op.Holders())
	for _, srv := range c.servers {
		assert.Equal(t, 0, srv.Latches.Len(), srv.Addr())
	}
}

func TestClientShutdownReleasesOpenTransaction(t *testing.T) {
	c, cleanup := startCluster(t, 3)
	defer cleanup()
	client := newTestClient(t, c.addrs)
	defer client.Close()
	ctx := context.Background()

	resp := client.Do(ctx, "TRANSACT a b c d e f g h i j")
	assert.True(t, strings.HasPrefix(resp, "Transaction started"), resp)
	// Servers wait for the open transaction before stopping, so the client aborts it.
	assert.Equal(t, command.Acknowledged, client.Do(ctx, "SHUTDOWN"))
	assert.False(t, client.InTransaction())
	for _, srv := range c.servers {
		select {
		case <-srv.Done():
		case <-time.After(3 * time.Second):
			t.Fatalf("server %s did not stop", srv.Addr())
		}
		assert.Equal(t, 0, srv.Latches.Len())
	}
}

func TestClientShutdown(t *testing.T) {
	c, cleanup := startCluster(t, 3)
	defer cleanup()
	client := newTestClient(t, c.addrs)
	defer client.Close()

	assert.Equal(t, command.Acknowledged, client.Do(context.Background(), "SHUTDOWN"))
	for _, srv := range c.servers {
		select {
		case <-srv.Done():
		case <-time.After(3 * time.Second):
			t.Fatalf("server %s did not stop", srv.Addr())
		}
	}
}

func freeAddr(t *testing.T) config.ServerAddr {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	addr, err := config.ParseServerAddr(l.Addr().String(), nil)
	require.Nil(t, err)
	l.Close()
	return addr
}

func TestUnreachableServerVotesServerError(t *testing.T) {
	client := newTestClient(t, []config.ServerAddr{freeAddr(t)})
	defer client.Close()
	assert.Equal(t, command.ServerError, client.Do(context.Background(), "GET a"))
}

func TestSilentServerVotesTimeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer l.Close()
	go func() {
		var conns []net.Conn
		for {
			conn, err := l.Accept()
			if err != nil {
				break
			}
			// Never answer.
			conns = append(conns, conn)
		}
		for _, conn := range conns {
			conn.Close()
		}
	}()
	addr, err := config.ParseServerAddr(l.Addr().String(), nil)
	require.Nil(t, err)

	cfg := config.NewDefaultClientConfig()
	cfg.Timeout = config.NewDuration(200 * time.Millisecond)
	client, err := NewClient([]config.ServerAddr{addr}, cfg)
	require.Nil(t, err)
	defer client.Close()

	start := time.Now()
	assert.Equal(t, command.Timeout, client.Do(context.Background(), "GET a"))
	assert.True(t, time.Since(start) < 2*time.Second)
}

func TestConnRedialsAfterFailure(t *testing.T) {
	c, cleanup := startCluster(t, 1)
	defer cleanup()
	conn := NewConn(c.addrs[0], config.NewDefaultClientConfig())
	defer conn.Close()
	ctx := context.Background()

	resp, err := conn.RoundTrip(ctx, "PUT a 1")
	require.Nil(t, err)
	assert.Equal(t, command.Null, resp)

	conn.conn.Close()
	_, err = conn.RoundTrip(ctx, "GET a")
	assert.NotNil(t, err)
	assert.Nil(t, conn.conn)

	resp, err = conn.RoundTrip(ctx, "GET a")
	require.Nil(t, err)
	assert.Equal(t, "1", resp)
}
