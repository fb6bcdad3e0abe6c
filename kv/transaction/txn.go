package transaction

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/treekv/treekv/kv/command"
	"github.com/treekv/treekv/kv/storage"
)

// ExpirationLayout is how expiration times are shown to clients.
const ExpirationLayout = "2006-01-02 15:04:05"

// Entry is one command buffered by a transaction.
type Entry struct {
	Kind command.Kind
	Args []string
	Time time.Time
}

type Txn struct {
	ID         string
	keys       []string
	held       map[string]struct{}
	expiration time.Time
	entries    []Entry
}

// NewTxn creates a transaction over keys, which must already be de-duplicated, expiring ttl after now.
func NewTxn(keys []string, ttl time.Duration, now time.Time) *Txn {
	held := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		held[k] = struct{}{}
	}
	return &Txn{
		ID:         uuid.New().String(),
		keys:       append([]string(nil), keys...),
		held:       held,
		expiration: now.Add(ttl),
	}
}

// Dedup returns keys with repeats removed, keeping first occurrences in order.
func Dedup(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Keys returns the keys this transaction holds. The slice must not be modified.
func (txn *Txn) Keys() []string {
	return txn.keys
}

func (txn *Txn) Holds(key string) bool {
	_, ok := txn.held[key]
	return ok
}

func (txn *Txn) Expiration() time.Time {
	return txn.expiration
}

func (txn *Txn) Expired(now time.Time) bool {
	return now.After(txn.expiration)
}

func (txn *Txn) FormatExpiration() string {
	return "Transaction started & expires at " + txn.expiration.Format(ExpirationLayout)
}

// Len is the number of buffered commands.
func (txn *Txn) Len() int {
	return len(txn.entries)
}

func (txn *Txn) Empty() bool {
	return len(txn.entries) == 0
}

// OnlyReads reports whether no buffered command is a write.
func (txn *Txn) OnlyReads() bool {
	for _, e := range txn.entries {
		if e.Kind == command.Write {
			return false
		}
	}
	return true
}

// Record buffers a keyed command if its arity is right and its key is held, and returns the response for the client.
func (txn *Txn) Record(kind command.Kind, args []string, now time.Time) string {
	if !kind.SufficientArgs(len(args)) {
		return command.InsufficientArguments
	}
	if !kind.IsKeyed() {
		return command.InvalidTransactionCmd
	}
	if !txn.Holds(args[0]) {
		return command.TransactionDoesNotHave
	}
	txn.entries = append(txn.entries, Entry{
		Kind: kind,
		Args: append([]string(nil), args...),
		Time: now,
	})
	return command.Acknowledged
}

// Commit replays every buffered command against store in the order it was recorded and returns the success marker
// followed by one response line per command. Latches are not consulted; the keys are already exclusive to txn.
func (txn *Txn) Commit(store storage.Storage) string {
	var b strings.Builder
	b.WriteString(command.Success)
	b.WriteString("\n")
	for _, e := range txn.entries {
		b.WriteString(command.Execute(e.Kind, e.Args, store, nil))
		b.WriteString("\n")
	}
	return b.String()
}

func (txn *Txn) String() string {
	return fmt.Sprintf("Transaction %s Keys: %v - Command Count: %d (Expires at %s)",
		txn.ID, txn.keys, len(txn.entries), txn.expiration.Format(ExpirationLayout))
}
