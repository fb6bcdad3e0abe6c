package command

import (
	"strconv"

	"github.com/treekv/treekv/kv/storage"
	"github.com/treekv/treekv/kv/transaction/latches"
	"github.com/treekv/treekv/log"
)

type handler func(args []string, store storage.Storage) string

var handlers = map[Kind]handler{
	Read:  handleRead,
	Write: handleWrite,
	Check: handleCheck,
}

// Execute runs a keyed command directly against storage. Arity is checked first, then whether any argument is latched by
// a transaction. A nil locks skips the latch check; commit replay relies on that since its keys are already exclusive.
//
// Kinds that are not keyed have no direct effect and are answered with UnsupportedCommand.
func Execute(kind Kind, args []string, store storage.Storage, locks *latches.Latches) string {
	h, ok := handlers[kind]
	if !ok {
		return UnsupportedCommand
	}
	if !kind.SufficientArgs(len(args)) {
		return InsufficientArguments
	}
	if locks != nil && locks.AnyLatched(args) {
		return KeyLocked
	}
	return h(args, store)
}

func handleRead(args []string, store storage.Storage) string {
	v, _, err := store.Get(args[0])
	if err != nil {
		log.Warnf("read %s failed: %v", args[0], err)
		return ServerError
	}
	return ValueOrNull(v)
}

func handleWrite(args []string, store storage.Storage) string {
	old, _, err := store.Put(args[0], args[1])
	if err != nil {
		log.Warnf("write %s failed: %v", args[0], err)
		return ServerError
	}
	return ValueOrNull(old)
}

func handleCheck(args []string, store storage.Storage) string {
	ok, err := store.Contains(args[0])
	if err != nil {
		log.Warnf("check %s failed: %v", args[0], err)
		return ServerError
	}
	return strconv.FormatBool(ok)
}
