package server

import (
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/treekv/treekv/kv/command"
	"github.com/treekv/treekv/kv/transaction"
	"github.com/treekv/treekv/log"
)

// Session is the server side of one client connection. It owns at most one open transaction.
//
// Handle is the only entry point. It runs under the server's dispatch lock, so a session never races with any other
// session on the same node.
type Session struct {
	ID     string
	remote string
	conn   net.Conn
	server *Server

	txn *transaction.Txn
}

func newSession(server *Server, remote string, conn net.Conn) *Session {
	return &Session{
		ID:     uuid.New().String(),
		remote: remote,
		conn:   conn,
		server: server,
	}
}

// Handle executes one command line and returns the response to write back.
func (s *Session) Handle(line string) string {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	return s.server.observe(s, line)
}

// Idle reports whether the session has no open transaction.
func (s *Session) Idle() bool {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	return s.txn == nil
}

func (s *Session) handle(req command.Request) string {
	now := s.server.clock()

	if s.server.ShuttingDown() {
		if s.txn == nil {
			return command.ShutdownInProgress
		}
		if s.txn.Expired(now) {
			s.erase(txnExpired)
			return command.ShutdownInProgress
		}
		// A live transaction may still finish during shutdown.
	}

	switch req.Kind {
	case command.Read, command.Write, command.Check:
		if s.txn == nil {
			return command.Execute(req.Kind, req.Args, s.server.storage, s.server.Latches)
		}
		if s.txn.Expired(now) {
			s.erase(txnExpired)
			return command.TransactionExpired
		}
		resp := s.txn.Record(req.Kind, req.Args, now)
		if resp == command.Acknowledged && req.Kind == command.Write {
			log.Infof("%s wrote %s -> %s", s, req.Args[0], req.Args[1])
		}
		return resp

	case command.BeginTransaction:
		return s.begin(req.Args)

	case command.CommitTransaction, command.AbortTransaction:
		if s.txn == nil {
			return command.TransactionNotExist
		}
		if s.txn.Expired(now) {
			s.erase(txnExpired)
			return command.TransactionExpired
		}
		if req.Kind == command.AbortTransaction {
			log.Infof("%s aborted", s)
			s.erase(txnAborted)
			return command.Acknowledged
		}
		return s.commit()

	case command.ShutdownServer:
		if !s.server.shutdown.Swap(true) {
			log.Infof("%s requested shutdown", s)
		}
		return command.Acknowledged
	}
	return command.UnsupportedCommand
}

func (s *Session) begin(args []string) string {
	if !command.BeginTransaction.SufficientArgs(len(args)) {
		return command.InsufficientArguments
	}
	if s.txn != nil {
		if s.txn.Expired(s.server.clock()) {
			s.erase(txnExpired)
			return command.TransactionExpired
		}
		return command.TransactionInProgress
	}

	keys := transaction.Dedup(args)
	txn := transaction.NewTxn(keys, s.server.conf.TransactionTTL.Duration, s.server.clock())
	if !s.server.Latches.AcquireLatches(txn.ID, keys) {
		transactionCounter.WithLabelValues(txnLocked).Inc()
		return command.KeyLocked
	}
	s.txn = txn
	transactionCounter.WithLabelValues(txnBegun).Inc()
	latchedKeysGauge.Add(float64(len(keys)))
	log.Infof("%s started transaction %s on %v", s, txn.ID, keys)

	if len(keys) != len(args) {
		return command.DuplicateKeys + "\n" + txn.FormatExpiration()
	}
	return txn.FormatExpiration()
}

func (s *Session) commit() string {
	if s.txn.Empty() {
		return command.EmptyTransaction
	}
	if s.txn.OnlyReads() {
		return command.NoWrites
	}
	log.Infof("%s committed transaction %s (%d keys released)", s, s.txn.ID, len(s.txn.Keys()))
	resp := s.txn.Commit(s.server.storage)
	s.erase(txnCommitted)
	return resp
}

// erase drops the open transaction, if any, and releases exactly the keys it held.
func (s *Session) erase(reason string) {
	if s.txn == nil {
		return
	}
	keys := s.txn.Keys()
	s.server.Latches.ReleaseLatches(s.txn.ID, keys)
	latchedKeysGauge.Sub(float64(len(keys)))
	transactionCounter.WithLabelValues(reason).Inc()
	if reason != txnCommitted && reason != txnAborted {
		log.Infof("%s lost transaction %s: %s", s, s.txn.ID, reason)
	}
	s.txn = nil
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.ID[:8], s.remote)
}
