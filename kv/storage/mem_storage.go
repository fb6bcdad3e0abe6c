package storage

import (
	"sync"

	"github.com/google/btree"
	"github.com/pingcap/errors"
)

var errEmptyKey = errors.New("storage: key is empty")

// MemStorage is a Storage backed by an ordered map in memory. Nothing is logged or written to disk. It is intended
// for testing only.
type MemStorage struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func NewMemStorage() *MemStorage {
	return &MemStorage{tree: btree.New(8)}
}

func (s *MemStorage) Start() error {
	return nil
}

func (s *MemStorage) Stop() error {
	return nil
}

func (s *MemStorage) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.Trace(errEmptyKey)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item := s.tree.Get(memItem{key: key})
	if item == nil {
		return "", false, nil
	}
	return item.(memItem).value, true, nil
}

func (s *MemStorage) Contains(key string) (bool, error) {
	_, ok, err := s.Get(key)
	return ok, err
}

func (s *MemStorage) Put(key, value string) (string, bool, error) {
	if key == "" {
		return "", false, errors.Trace(errEmptyKey)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.tree.ReplaceOrInsert(memItem{key: key, value: value})
	if old == nil {
		return "", false, nil
	}
	return old.(memItem).value, true, nil
}

func (s *MemStorage) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Keys: s.tree.Len()}
}

// Dump returns a copy of every pair, for assertions in tests.
func (s *MemStorage) Dump() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, s.tree.Len())
	s.tree.Ascend(func(i btree.Item) bool {
		it := i.(memItem)
		out[it.key] = it.value
		return true
	})
	return out
}

type memItem struct {
	key   string
	value string
}

func (it memItem) Less(than btree.Item) bool {
	return it.key < than.(memItem).key
}
