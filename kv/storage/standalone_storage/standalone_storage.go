package standalone_storage

import (
	"path/filepath"
	"sync"

	"github.com/pingcap/errors"
	"github.com/treekv/treekv/kv/btree"
	"github.com/treekv/treekv/kv/config"
	"github.com/treekv/treekv/kv/storage"
	"github.com/treekv/treekv/kv/util"
	"github.com/treekv/treekv/kv/wal"
	"github.com/treekv/treekv/log"
)

// StandAloneStorage is a single-node implementation of Storage: one B-tree in memory, with every accepted write
// recorded in a write-ahead log that is replayed at Start.
type StandAloneStorage struct {
	conf *config.Config

	mu   sync.RWMutex
	tree *btree.BTree
	log  *wal.Log
}

func NewStandAloneStorage(conf *config.Config) (*StandAloneStorage, error) {
	tree, err := btree.New(conf.Degree)
	if err != nil {
		return nil, errors.Trace(err)
	}
	path := filepath.Join(conf.DataDir, wal.FileName(conf.Port()))
	l, err := wal.New(path, conf.WALBufferSize, conf.WALEnabled)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &StandAloneStorage{
		conf: conf,
		tree: tree,
		log:  l,
	}, nil
}

// Start rebuilds the tree from the log file, creating the file if this node has never run before.
func (s *StandAloneStorage) Start() error {
	if !s.conf.WALEnabled {
		return nil
	}
	path := s.log.Path()
	created, err := util.CreateFileIfMissing(path)
	if err != nil {
		return errors.Annotatef(err, "cannot create log file %s", path)
	}
	if created {
		log.Infof("created log file %s", path)
		return nil
	}

	s.log.SetReplaying(true)
	defer s.log.SetReplaying(false)
	n, err := wal.Replay(path, func(key, value string) error {
		_, _, err := s.Put(key, value)
		return err
	})
	if err != nil {
		return errors.Trace(err)
	}
	s.mu.RLock()
	keys := s.tree.KeyCount()
	s.mu.RUnlock()
	log.Infof("reconstructed %d keys from %d entries in %s", keys, n, path)
	return nil
}

// Stop flushes whatever the log still has staged.
func (s *StandAloneStorage) Stop() error {
	return errors.Trace(s.log.FlushImmediately())
}

func (s *StandAloneStorage) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Get(key)
}

func (s *StandAloneStorage) Contains(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Contains(key)
}

// Put writes to the tree and then stages the entry in the log, both under the tree lock so the log keeps the order
// the tree saw. A failed log flush is reported but does not undo the write; the entry is lost from the log only.
func (s *StandAloneStorage) Put(key, value string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, replaced, err := s.tree.Put(key, value)
	if err != nil {
		return "", false, err
	}
	if err := s.log.Append(key, value); err != nil {
		log.Warnf("log %s=%s failed: %v", key, value, err)
	}
	return old, replaced, nil
}

func (s *StandAloneStorage) Stats() storage.Stats {
	s.mu.RLock()
	st := storage.Stats{
		Keys:   s.tree.KeyCount(),
		Nodes:  s.tree.NodeCount(),
		Depth:  s.tree.Depth(),
		Degree: s.tree.Degree(),
	}
	s.mu.RUnlock()

	if s.conf.WALEnabled {
		st.LogFile = s.log.Path()
		st.LogPending = s.log.Pending()
		if size, err := s.log.Size(); err == nil {
			st.LogSize = size
		}
	}
	return st
}

// Verify checks the structural invariants of the tree.
func (s *StandAloneStorage) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Verify()
}
