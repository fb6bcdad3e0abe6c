package latches

import (
	"sort"
	"sync"
)

// Latches is the set of keys currently held by an open transaction on one node. A single-key command must not read or
// write a latched key, and a transaction can only begin once every key it names is free.
//
// A latch belongs to the transaction that acquired it. All keys of a transaction are latched together in one call to
// AcquireLatches and released together when that transaction commits, aborts, expires or loses its connection.
//
// Latching is implemented using a single map from key to owner. Access to this map is guarded by a mutex so that
// acquiring a whole key set is atomic.
type Latches struct {
	// latchMap maps each latched key to the id of the transaction holding it.
	latchMap map[string]string
	// Mutex to guard latchMap. A goroutine must hold this mutex while it reads or changes latchMap.
	latchGuard sync.Mutex
}

// NewLatches creates a new Latches object. There should only be one per node, shared between all connections.
func NewLatches() *Latches {
	l := new(Latches)
	l.latchMap = make(map[string]string)
	return l
}

// AcquireLatches latches every key for owner, or none of them. It returns false, leaving the set unchanged, if any key
// is already latched.
func (l *Latches) AcquireLatches(owner string, keysToLatch []string) bool {
	l.latchGuard.Lock()
	defer l.latchGuard.Unlock()

	for _, key := range keysToLatch {
		if _, ok := l.latchMap[key]; ok {
			return false
		}
	}
	for _, key := range keysToLatch {
		l.latchMap[key] = owner
	}
	return true
}

// ReleaseLatches releases the keys in keysToUnlatch that owner holds. Keys held by anyone else are left alone.
func (l *Latches) ReleaseLatches(owner string, keysToUnlatch []string) {
	l.latchGuard.Lock()
	defer l.latchGuard.Unlock()

	for _, key := range keysToUnlatch {
		if l.latchMap[key] == owner {
			delete(l.latchMap, key)
		}
	}
}

// AnyLatched reports whether at least one of keys is held.
func (l *Latches) AnyLatched(keys []string) bool {
	l.latchGuard.Lock()
	defer l.latchGuard.Unlock()

	for _, key := range keys {
		if _, ok := l.latchMap[key]; ok {
			return true
		}
	}
	return false
}

// Keys returns every latched key in sorted order.
func (l *Latches) Keys() []string {
	l.latchGuard.Lock()
	keys := make([]string, 0, len(l.latchMap))
	for key := range l.latchMap {
		keys = append(keys, key)
	}
	l.latchGuard.Unlock()
	sort.Strings(keys)
	return keys
}

func (l *Latches) Len() int {
	l.latchGuard.Lock()
	defer l.latchGuard.Unlock()
	return len(l.latchMap)
}
