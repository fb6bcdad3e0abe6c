package server

import (
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/treekv/treekv/kv/command"
	"github.com/treekv/treekv/kv/config"
	"github.com/treekv/treekv/kv/storage"
	"github.com/treekv/treekv/kv/transaction/latches"
	"github.com/treekv/treekv/log"
	"go.uber.org/atomic"
)

// Server is a treekv node. It accepts plain text connections, one goroutine per connection, and runs every command
// of every connection through a single dispatch lock against its storage.
//
// After SHUTDOWN the server keeps serving sessions that still have an open transaction, and refuses everything from
// the rest. Once no session holds a transaction it closes the listener and every connection, and Done is closed. The
// caller then stops the storage, which flushes the log.
type Server struct {
	conf    *config.Config
	storage storage.Storage

	Latches *latches.Latches

	// mu serializes command handling across all sessions, and guards sessions.
	mu       sync.Mutex
	sessions map[string]*Session

	shutdown *atomic.Bool
	clock    func() time.Time
	started  time.Time

	listener       net.Listener
	statusListener net.Listener
	statusServer   *http.Server

	wg       sync.WaitGroup
	stopOnce sync.Once
	closing  chan struct{}
	done     chan struct{}
}

func NewServer(conf *config.Config, storage storage.Storage) *Server {
	return &Server{
		conf:     conf,
		storage:  storage,
		Latches:  latches.NewLatches(),
		sessions: make(map[string]*Session),
		shutdown: atomic.NewBool(false),
		clock:    time.Now,
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start listens on the store address, and on the status address if one is configured, and serves in the background.
// Storage must already be started.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.conf.StoreAddr)
	if err != nil {
		return errors.Annotatef(err, "cannot listen on %s", s.conf.StoreAddr)
	}
	s.listener = l
	s.started = time.Now()

	if s.conf.StatusAddr != "" {
		if err := s.startStatusServer(); err != nil {
			l.Close()
			return err
		}
	}

	log.Infof("listening on %s", l.Addr())
	go s.serve()
	return nil
}

// Addr is the address the server accepts commands on.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.conf.StoreAddr
	}
	return s.listener.Addr().String()
}

// Done is closed once the server has stopped accepting and every connection has been closed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) ShuttingDown() bool {
	return s.shutdown.Load()
}

// Stop closes the server without waiting for open transactions, then waits for it to finish.
func (s *Server) Stop() {
	s.shutdown.Store(true)
	s.stop()
	if s.listener != nil {
		<-s.done
	}
}

func (s *Server) serve() {
	defer close(s.done)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closing:
			default:
				log.Errorf("accept on %s failed: %v", s.listener.Addr(), err)
				s.stop()
			}
			break
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
	s.wg.Wait()
	log.Infof("server %s stopped", s.listener.Addr())
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()

	sess := s.NewSession(conn.RemoteAddr().String(), conn)
	log.Infof("accepted connection from %s", sess)
	defer s.CloseSession(sess)
	select {
	case <-s.closing:
		// Registered after stop closed the other connections.
		return
	default:
	}

	buf := make([]byte, s.conf.BufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			resp := sess.Handle(string(buf[:n]))
			if _, werr := conn.Write([]byte(resp)); werr != nil {
				log.Warnf("write to %s failed: %v", sess, werr)
				return
			}
			s.maybeStop()
		}
		if err != nil {
			select {
			case <-s.closing:
			default:
				if err != io.EOF {
					log.Errorf("unexpected drop of connection %s: %v", sess, err)
				}
			}
			return
		}
	}
}

// NewSession registers a session for remote. conn may be nil for a session driven directly through Handle.
func (s *Server) NewSession(remote string, conn net.Conn) *Session {
	sess := newSession(s, remote, conn)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	sessionGauge.Inc()
	return sess
}

// CloseSession unregisters sess, releasing any transaction it still holds, and closes its connection.
func (s *Server) CloseSession(sess *Session) {
	s.mu.Lock()
	_, ok := s.sessions[sess.ID]
	if ok {
		sess.erase(txnDropped)
		delete(s.sessions, sess.ID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	sessionGauge.Dec()
	if sess.conn != nil {
		sess.conn.Close()
	}
	s.maybeStop()
}

// observe handles one command line for sess and records metrics. s.mu must be held.
func (s *Server) observe(sess *Session, line string) string {
	start := time.Now()
	req := command.Parse(strings.TrimSpace(line))
	resp := sess.handle(req)
	commandCounter.WithLabelValues(req.Kind.String(), resultLabel(resp)).Inc()
	commandDuration.WithLabelValues(req.Kind.String()).Observe(time.Since(start).Seconds())
	return resp
}

// maybeStop stops the server once shutdown has been requested and no session holds a transaction.
func (s *Server) maybeStop() {
	if !s.ShuttingDown() {
		return
	}
	s.mu.Lock()
	for _, sess := range s.sessions {
		if sess.txn != nil {
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()
	s.stop()
}

func (s *Server) stop() {
	s.stopOnce.Do(func() {
		close(s.closing)
		log.Infof("stopping server %s", s.Addr())
		if s.listener != nil {
			s.listener.Close()
		}
		if s.statusServer != nil {
			s.statusServer.Close()
		}
		s.mu.Lock()
		for _, sess := range s.sessions {
			if sess.conn != nil {
				sess.conn.Close()
			}
		}
		s.mu.Unlock()
	})
}

// Stats is a snapshot of the node, served on /api/v1/stats.
type Stats struct {
	Addr         string        `json:"addr"`
	Uptime       string        `json:"uptime"`
	ShuttingDown bool          `json:"shutting_down"`
	Sessions     int           `json:"sessions"`
	Transactions int           `json:"transactions"`
	LatchedKeys  []string      `json:"latched_keys"`
	Storage      storage.Stats `json:"storage"`
	LogSize      string        `json:"log_size_human"`
}

func (s *Server) Stats() Stats {
	st := Stats{
		Addr:         s.Addr(),
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		ShuttingDown: s.ShuttingDown(),
		LatchedKeys:  s.Latches.Keys(),
		Storage:      s.storage.Stats(),
	}
	s.mu.Lock()
	st.Sessions = len(s.sessions)
	for _, sess := range s.sessions {
		if sess.txn != nil {
			st.Transactions++
		}
	}
	s.mu.Unlock()
	st.LogSize = units.HumanSize(float64(st.Storage.LogSize))
	return st
}
