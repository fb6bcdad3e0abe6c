package storage

// Storage is the single-node key/value store a treekv server runs its protocol against. Implementations own their
// own locking; every method may be called from any connection goroutine.
type Storage interface {
	Start() error
	Stop() error
	// Get returns the value stored for key and whether it was present.
	Get(key string) (string, bool, error)
	Contains(key string) (bool, error)
	// Put inserts or overwrites key and returns the value it replaced, if any.
	Put(key, value string) (string, bool, error)
	Stats() Stats
}

// Stats is a point-in-time summary of a store, reported by the status server.
type Stats struct {
	Keys       int    `json:"keys"`
	Nodes      int    `json:"nodes"`
	Depth      int    `json:"depth"`
	Degree     int    `json:"degree"`
	LogFile    string `json:"log_file,omitempty"`
	LogSize    int64  `json:"log_size"`
	LogPending int    `json:"log_pending"`
}
