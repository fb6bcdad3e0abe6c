// Package command defines the closed set of commands a treekv node understands, how many arguments each takes, and how
// the single-key commands are executed against storage.
package command

import (
	"strings"
)

type Kind int

const (
	Read Kind = iota
	Write
	Check
	BeginTransaction
	CommitTransaction
	AbortTransaction
	ShutdownServer
	Unsupported
)

type kindInfo struct {
	name  string
	alias string
	arity func(n int) bool
}

func none(n int) bool { return n == 0 }
func singleKey(n int) bool { return n == 1 }
func keyValue(n int) bool { return n == 2 }
func atLeastOne(n int) bool { return n >= 1 }
func never(int) bool { return false }

var kinds = [...]kindInfo{
	Read:              {name: "READ", alias: "GET", arity: singleKey},
	Write:             {name: "WRITE", alias: "PUT", arity: keyValue},
	Check:             {name: "CHECK", alias: "CONTAINS", arity: singleKey},
	BeginTransaction:  {name: "BEGIN_TRANSACTION", alias: "TRANSACT", arity: atLeastOne},
	CommitTransaction: {name: "COMMIT_TRANSACTION", alias: "COMMIT", arity: none},
	AbortTransaction:  {name: "ABORT_TRANSACTION", alias: "ABORT", arity: none},
	ShutdownServer:    {name: "SHUTDOWN_SERVER", alias: "SHUTDOWN", arity: none},
	Unsupported:       {name: "UNSUPPORTED", alias: "UNSUPPORTED", arity: never},
}

var lookupMap = func() map[string]Kind {
	m := make(map[string]Kind, 2*len(kinds))
	for k, info := range kinds {
		m[info.name] = Kind(k)
		m[info.alias] = Kind(k)
	}
	return m
}()

// Lookup maps a command word to its kind, ignoring case. Both the wire alias (GET) and the kind name (READ) are
// accepted. Anything else is Unsupported.
func Lookup(name string) Kind {
	if k, ok := lookupMap[strings.ToUpper(name)]; ok {
		return k
	}
	return Unsupported
}

func (k Kind) valid() bool {
	return k >= Read && k <= Unsupported
}

func (k Kind) String() string {
	if !k.valid() {
		return "UNKNOWN"
	}
	return kinds[k].name
}

// Alias is the word clients send on the wire for k.
func (k Kind) Alias() string {
	if !k.valid() {
		return kinds[Unsupported].alias
	}
	return kinds[k].alias
}

// SufficientArgs reports whether n arguments satisfy the arity of k. Unsupported is never satisfied.
func (k Kind) SufficientArgs(n int) bool {
	if !k.valid() {
		return false
	}
	return kinds[k].arity(n)
}

// IsKeyed reports whether k addresses a single key and may be buffered inside a transaction.
func (k Kind) IsKeyed() bool {
	return k == Read || k == Write || k == Check
}

// IsBroadcast reports whether k is scoped to a session rather than to keys.
func (k Kind) IsBroadcast() bool {
	return k == CommitTransaction || k == AbortTransaction || k == ShutdownServer
}

// Request is one parsed command line.
type Request struct {
	Kind Kind
	Name string
	Args []string
}

// Parse splits a command line on whitespace. The first word selects the kind; the rest are arguments.
func Parse(line string) Request {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{Kind: Unsupported}
	}
	return Request{
		Kind: Lookup(fields[0]),
		Name: fields[0],
		Args: fields[1:],
	}
}

// Keys returns the keys a request touches.
func (r Request) Keys() []string {
	switch {
	case r.Kind == BeginTransaction:
		return r.Args
	case r.Kind.IsKeyed() && len(r.Args) > 0:
		return r.Args[:1]
	}
	return nil
}

// String renders the request as it would be sent on the wire.
func (r Request) String() string {
	name := r.Name
	if name == "" {
		name = r.Kind.Alias()
	}
	if len(r.Args) == 0 {
		return name
	}
	return name + " " + strings.Join(r.Args, " ")
}
