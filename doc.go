package treekv

/*
TreeKV is a small distributed key/value store. Each node keeps its data in an in-memory B-tree, records every accepted
write in an append-only log it replays on restart, and serves a line-oriented text protocol over TCP. Clients spread
keys over a fixed roster of nodes and settle every command by majority vote among the nodes responsible for its key.

Building TreeKV produces two executables: treekv-server, which runs one node (or every local node of a roster group),
and treekv-ctl, which offers an interactive shell against one node, a voting shell against a roster, and tools to
generate, load and benchmark data.

The `treekv` module is organized into the following packages:

* `kv/btree`: the B-tree storage engine.
* `kv/wal`: the write-ahead log and its replay.
* `kv/storage`: the storage interface and its standalone implementation.
* `kv/command`: the command vocabulary, arity rules and single-key handlers.
* `kv/transaction`: per-session transactions and the node-wide key latches.
* `kv/server`: the TCP server, per-connection sessions and the status endpoint.
* `kv/quorum`: the client that ranks servers per key and votes over their replies.
* `kv/config`: node and client configuration and the roster file.
* `log`: the leveled logger used everywhere.
*/
