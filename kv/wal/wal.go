// Package wal is the append-only log of accepted writes that lets a node rebuild its tree after a restart.
//
// Entries are `key=value` lines. They are staged in a fixed size ring and written to the backing file in one
// synchronous flush whenever the ring wraps, or when FlushImmediately is called on shutdown. Nothing is fsynced.
package wal

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/docker/go-units"
	"github.com/pingcap/errors"
	"github.com/treekv/treekv/kv/util"
	"github.com/treekv/treekv/log"
)

const (
	Delimiter = "="

	DefaultBufferSize = 10
	// MinBufferSize is exclusive: a ring must hold more than this many entries.
	MinBufferSize = 5
)

var ErrInvalidBufferSize = errors.Errorf("wal: buffer size must be greater than %d", MinBufferSize)

// FileName is the log file a node listening on port writes to.
func FileName(port string) string {
	return port + "-tree-log.txt"
}

type Log struct {
	// mu serializes appends and every access to the backing file.
	mu      sync.Mutex
	path    string
	enabled bool
	ring    []string
	clock   int
	// replaying suppresses appends while the log is being fed back into a tree.
	replaying bool
}

// New creates a log writing to path. A disabled log accepts appends and drops them.
func New(path string, bufferSize int, enabled bool) (*Log, error) {
	if bufferSize <= MinBufferSize {
		return nil, errors.Trace(ErrInvalidBufferSize)
	}
	return &Log{
		path:    path,
		enabled: enabled,
		ring:    make([]string, bufferSize),
	}, nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) SetReplaying(replaying bool) {
	l.mu.Lock()
	l.replaying = replaying
	l.mu.Unlock()
}

// Pending is the number of entries staged in the ring and not yet on disk.
func (l *Log) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingLocked()
}

// Append stages one entry. When the ring wraps back to slot 0 the whole ring is flushed before Append returns.
func (l *Log) Append(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.replaying || !l.enabled {
		return nil
	}

	l.ring[l.clock] = key + Delimiter + value + "\n"
	l.clock = (l.clock + 1) % len(l.ring)
	if l.clock == 0 {
		return l.flushLocked()
	}
	return nil
}

// FlushImmediately writes whatever is staged, regardless of how full the ring is.
func (l *Log) FlushImmediately() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *Log) flushLocked() error {
	if !l.enabled {
		return nil
	}
	defer l.reset()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Errorf("open log file %s failed, %d entries dropped: %v", l.path, l.pendingLocked(), err)
		return errors.Trace(err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	written := 0
	for _, entry := range l.ring {
		if entry == "" {
			continue
		}
		n, err := w.WriteString(entry)
		if err != nil {
			log.Errorf("write log file %s failed: %v", l.path, err)
			return errors.Trace(err)
		}
		written += n
	}
	if err := w.Flush(); err != nil {
		log.Errorf("flush log file %s failed: %v", l.path, err)
		return errors.Trace(err)
	}
	if written > 0 {
		log.Debugf("flushed %s to %s", units.HumanSize(float64(written)), l.path)
	}
	return nil
}

func (l *Log) pendingLocked() int {
	n := 0
	for _, e := range l.ring {
		if e != "" {
			n++
		}
	}
	return n
}

func (l *Log) reset() {
	for i := range l.ring {
		l.ring[i] = ""
	}
	l.clock = 0
}

// Size is the current size of the backing file in bytes.
func (l *Log) Size() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return util.GetFileSize(l.path)
}

// Replay reads the log at path line by line and hands every well formed entry to apply, in file order. Malformed lines
// are skipped with a warning. It returns the number of entries applied.
func Replay(path string, apply func(key, value string) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Annotatef(err, "cannot reconstruct from %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	applied := 0
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		fields := strings.Split(line, Delimiter)
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			log.Warnf("%s:%d %q is an anomaly, skipped", path, lineNo, line)
			continue
		}
		if err := apply(fields[0], fields[1]); err != nil {
			return applied, errors.Annotatef(err, "%s:%d", path, lineNo)
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		return applied, errors.Annotatef(err, "error reading %s", path)
	}
	return applied, nil
}
