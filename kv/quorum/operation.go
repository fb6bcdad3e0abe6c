package quorum

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"
	"github.com/treekv/treekv/kv/command"
	"github.com/treekv/treekv/kv/transaction"
	"github.com/treekv/treekv/log"
)

// QuorumSize is the number of servers consulted per key in a roster of n.
func QuorumSize(n int) int {
	return n/2 + 1
}

func keyHash(key string, addr string, port string) int32 {
	return int32(murmur3.Sum32([]byte(key + addr + ":" + port)))
}

// Rank orders servers for key by descending hash of key, host and port. Servers with equal hashes keep roster order.
func Rank(key string, servers []*Conn) []*Conn {
	type scored struct {
		conn *Conn
		hash int32
	}
	ranked := make([]scored, len(servers))
	for i, s := range servers {
		ranked[i] = scored{conn: s, hash: keyHash(key, s.Addr.Host, s.Addr.Port)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].hash > ranked[j].hash
	})
	out := make([]*Conn, len(ranked))
	for i, r := range ranked {
		out[i] = r.conn
	}
	return out
}

// Operation is one logical client operation over a fixed roster: a single keyed command, a session wide command, or
// a transaction from BEGIN to its COMMIT or ABORT. Each key of the operation is mapped to its quorum when the
// operation is created, and that mapping does not change.
//
// A transaction operation tracks which servers still hold its transaction. When the operation closes without every
// one of them having released it, for example after a BEGIN that only some servers accepted, those servers are sent
// ABORT so that no key stays latched behind the client's back.
type Operation struct {
	servers []*Conn
	keys    []string
	quorums map[string][]*Conn
	timeout time.Duration
	// txn is set for operations opened by BEGIN. Only those stay open across commands.
	txn     bool
	begun   bool
	done    bool
	holders map[*Conn]bool
}

func NewOperation(kind command.Kind, keys []string, servers []*Conn, timeout time.Duration) *Operation {
	keys = transaction.Dedup(keys)
	size := QuorumSize(len(servers))
	quorums := make(map[string][]*Conn, len(keys))
	for _, k := range keys {
		quorums[k] = Rank(k, servers)[:size]
	}
	return &Operation{
		servers: servers,
		keys:    keys,
		quorums: quorums,
		timeout: timeout,
		txn:     kind == command.BeginTransaction,
		done:    kind != command.BeginTransaction,
		holders: make(map[*Conn]bool),
	}
}

// Quorum returns the servers responsible for key in this operation.
func (op *Operation) Quorum(key string) []*Conn {
	return op.quorums[key]
}

// Done reports whether the operation is finished and a new one must be created for the next command.
func (op *Operation) Done() bool {
	return op.done
}

// Holders returns, in roster order, the servers that may still hold the operation's transaction.
func (op *Operation) Holders() []*Conn {
	var out []*Conn
	for _, c := range op.servers {
		if op.holders[c] {
			out = append(out, c)
		}
	}
	return out
}

// Send dispatches req, whose text on the wire is line, and returns the voted reply.
func (op *Operation) Send(ctx context.Context, req command.Request, line string) string {
	switch {
	case req.Kind.IsKeyed():
		return op.sendKeyed(ctx, req.Kind, line, req.Args[0])
	case req.Kind == command.BeginTransaction:
		if op.begun {
			return command.TransactionInProgress
		}
		op.begun = true
		targets := op.beginTargets(line)
		resp, replies := op.round(ctx, req.Kind, line, targets)
		for i, t := range targets {
			if holdsTransaction(replies[i]) {
				op.holders[t.conn] = true
			}
		}
		if !started(resp) {
			op.close(ctx)
		}
		return resp
	case req.Kind.IsBroadcast():
		targets := op.broadcastTargets(line)
		resp, replies := op.round(ctx, req.Kind, line, targets)
		if !op.txn {
			return resp
		}
		if req.Kind != command.ShutdownServer {
			for i, t := range targets {
				if !holdsTransaction(replies[i]) {
					delete(op.holders, t.conn)
				}
			}
		}
		if closesTransaction(resp) {
			op.close(ctx)
		}
		return resp
	}
	return command.UnsupportedCommand
}

// close finishes the operation and aborts the transaction on every server still holding it.
func (op *Operation) close(ctx context.Context) {
	op.done = true
	holders := op.Holders()
	op.holders = make(map[*Conn]bool)
	if len(holders) == 0 {
		return
	}
	line := command.AbortTransaction.Alias()
	targets := make([]target, len(holders))
	for i, c := range holders {
		targets[i] = target{conn: c, cmd: line}
	}
	log.Infof("releasing transaction left open on %v", targets)
	if resp, replies := op.round(ctx, command.AbortTransaction, line, targets); resp != command.Acknowledged {
		log.Warnf("release of transaction answered %q", replies)
	}
}

const beginPrefix = "Transaction started"

func started(resp string) bool {
	return strings.HasPrefix(resp, beginPrefix) || strings.HasPrefix(resp, command.DuplicateKeys)
}

// holdsTransaction reports whether a single server's reply leaves it holding the transaction. Failed or timed out
// round trips close the socket, and a server drops the transaction of a closed connection.
func holdsTransaction(resp string) bool {
	switch resp {
	case command.EmptyTransaction, command.NoWrites, command.TransactionInProgress:
		return true
	}
	return started(resp)
}

// closesTransaction reports whether a voted reply ends the transaction for the client.
func closesTransaction(resp string) bool {
	switch resp {
	case command.Acknowledged, command.TransactionExpired, command.TransactionNotExist:
		return true
	}
	return strings.HasPrefix(resp, command.Success)
}

func (op *Operation) sendKeyed(ctx context.Context, kind command.Kind, line, key string) string {
	quorum, ok := op.quorums[key]
	if !ok {
		return command.KeyNotInQuorum
	}
	targets := make([]target, len(quorum))
	for i, c := range quorum {
		targets[i] = target{conn: c, cmd: line}
	}
	resp, _ := op.round(ctx, kind, line, targets)
	return resp
}

// beginTargets sends every server only the keys it is responsible for. With a single key the client's line is sent
// to that key's quorum unchanged.
func (op *Operation) beginTargets(line string) []target {
	if len(op.keys) == 1 {
		quorum := op.quorums[op.keys[0]]
		targets := make([]target, len(quorum))
		for i, c := range quorum {
			targets[i] = target{conn: c, cmd: line}
		}
		return targets
	}

	assigned := make(map[*Conn][]string, len(op.servers))
	for _, k := range op.keys {
		for _, c := range op.quorums[k] {
			assigned[c] = append(assigned[c], k)
		}
	}
	var targets []target
	for _, c := range op.servers {
		keys, ok := assigned[c]
		if !ok {
			continue
		}
		req := command.Request{Kind: command.BeginTransaction, Args: keys}
		targets = append(targets, target{conn: c, cmd: req.String()})
	}
	log.Debugf("transaction %q split into %v", line, targets)
	return targets
}

func (op *Operation) broadcastTargets(line string) []target {
	targets := make([]target, len(op.servers))
	for i, c := range op.servers {
		targets[i] = target{conn: c, cmd: line}
	}
	return targets
}

type target struct {
	conn *Conn
	cmd  string
}

func (t target) String() string {
	return t.conn.Addr.String() + " <- " + t.cmd
}

type reply struct {
	idx  int
	resp string
}

// round sends every target its command concurrently and votes over the replies. It returns the vote and the replies,
// which are ordered like targets, so ties go to the earlier target. A server that fails votes ServerError; one that does not answer within the
// operation timeout votes Timeout.
func (op *Operation) round(ctx context.Context, kind command.Kind, line string, targets []target) (string, []string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, op.timeout)
	defer cancel()

	replies := make([]string, len(targets))
	for i := range replies {
		replies[i] = command.Timeout
	}
	ch := make(chan reply, len(targets))
	for i, t := range targets {
		go func(i int, t target) {
			resp, err := t.conn.RoundTrip(ctx, t.cmd)
			if err != nil {
				reason := command.ServerError
				if isTimeout(err) {
					reason = command.Timeout
				}
				serverFailureCounter.WithLabelValues(t.conn.Addr.String(), reason).Inc()
				log.Warnf("command [%s] on %s failed: %v", t.cmd, t.conn.Addr, err)
				resp = reason
			}
			ch <- reply{idx: i, resp: resp}
		}(i, t)
	}

collect:
	for range targets {
		select {
		case r := <-ch:
			replies[r.idx] = r.resp
		case <-ctx.Done():
			log.Errorf("command [%s] timed out after %v", line, op.timeout)
			break collect
		}
	}

	roundCounter.WithLabelValues(kind.String()).Inc()
	roundDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
	resp := Vote(replies)
	log.Debugf("command [%s] produced votes %q -> %q", line, replies, resp)
	return resp, replies
}
