package config

import (
	"net"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/treekv/treekv/kv/wal"
	"github.com/treekv/treekv/log"
)

// Duration wraps time.Duration so it can be written as "15m" or "30s" in a TOML file.
type Duration struct {
	time.Duration
}

func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.Trace(err)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	StoreAddr  string `toml:"store-addr"`
	StatusAddr string `toml:"status-addr"`
	LogLevel   string `toml:"log-level"`
	// LogFile, when set, redirects logging to a rotated file instead of stderr.
	LogFile string `toml:"log-file"`

	// DataDir holds the <port>-tree-log.txt file. Should exist and be writable.
	DataDir string `toml:"data-dir"`

	// Degree is the minimum degree of the B-tree.
	Degree int `toml:"degree"`

	WALEnabled bool `toml:"wal-enabled"`
	// WALBufferSize is the number of entries staged before a synchronous flush.
	WALBufferSize int `toml:"wal-buffer-size"`

	// TransactionTTL is how long a transaction holds its keys before it is considered expired.
	TransactionTTL Duration `toml:"transaction-ttl"`

	// BufferSize bounds a single command read from a connection, in bytes.
	BufferSize int `toml:"buffer-size"`
}

func (c *Config) Validate() error {
	if c.Degree < 2 {
		return errors.Errorf("degree must be at least 2, got %d", c.Degree)
	}
	if c.WALBufferSize <= wal.MinBufferSize {
		return errors.Errorf("wal buffer size must be greater than %d, got %d", wal.MinBufferSize, c.WALBufferSize)
	}
	if c.TransactionTTL.Duration <= 0 {
		return errors.New("transaction ttl must be positive")
	}
	if c.BufferSize <= 0 {
		return errors.Errorf("buffer size must be positive, got %d", c.BufferSize)
	}
	if _, _, err := net.SplitHostPort(c.StoreAddr); err != nil {
		return errors.Annotatef(err, "invalid store address %q", c.StoreAddr)
	}
	if c.BufferSize < 64 {
		log.Warnf("buffer size %d is small, long commands will be truncated", c.BufferSize)
	}
	return nil
}

// Port is the port part of StoreAddr. It names the node's log file.
func (c *Config) Port() string {
	_, port, err := net.SplitHostPort(c.StoreAddr)
	if err != nil {
		return c.StoreAddr
	}
	return port
}

// Clone returns a copy of c listening on addr, used to start several nodes from one file.
func (c *Config) Clone(addr string) *Config {
	cp := *c
	cp.StoreAddr = addr
	cp.StatusAddr = ""
	return &cp
}

const (
	DefaultDegree         = 5
	DefaultBufferSize     = 1024
	DefaultTransactionTTL = 15 * time.Minute
)

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	return &Config{
		StoreAddr:      "127.0.0.1:6379",
		StatusAddr:     "127.0.0.1:20180",
		LogLevel:       getLogLevel(),
		DataDir:        ".",
		Degree:         DefaultDegree,
		WALEnabled:     true,
		WALBufferSize:  wal.DefaultBufferSize,
		TransactionTTL: NewDuration(DefaultTransactionTTL),
		BufferSize:     DefaultBufferSize,
	}
}

// NewTestConfig listens on an ephemeral port and keeps the log under dir.
func NewTestConfig(dir string) *Config {
	return &Config{
		StoreAddr:      "127.0.0.1:0",
		LogLevel:       getLogLevel(),
		DataDir:        dir,
		Degree:         DefaultDegree,
		WALEnabled:     true,
		WALBufferSize:  wal.DefaultBufferSize,
		TransactionTTL: NewDuration(DefaultTransactionTTL),
		BufferSize:     DefaultBufferSize,
	}
}

// LoadFile overlays the TOML file at path onto c. Keys missing from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Annotatef(err, "cannot parse config file %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		log.Warnf("config file %s contains unknown items %v", path, undecoded)
	}
	return nil
}

type ClientConfig struct {
	// Timeout bounds one quorum round, across every server it waits on.
	Timeout     Duration `toml:"timeout"`
	DialTimeout Duration `toml:"dial-timeout"`
	BufferSize  int      `toml:"buffer-size"`
}

const (
	DefaultClientTimeout = 30 * time.Second
	DefaultDialTimeout   = 5 * time.Second
)

func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:     NewDuration(DefaultClientTimeout),
		DialTimeout: NewDuration(DefaultDialTimeout),
		BufferSize:  DefaultBufferSize,
	}
}

func (c *ClientConfig) Validate() error {
	if c.Timeout.Duration <= 0 {
		return errors.New("client timeout must be positive")
	}
	if c.DialTimeout.Duration <= 0 {
		return errors.New("dial timeout must be positive")
	}
	if c.BufferSize <= 0 {
		return errors.Errorf("buffer size must be positive, got %d", c.BufferSize)
	}
	return nil
}
