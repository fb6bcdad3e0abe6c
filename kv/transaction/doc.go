// Package transaction implements the per-connection transactions of a treekv node.
//
// A transaction is opened with BEGIN (TRANSACT k1 k2 ...). Opening it latches every named key in the node-wide
// latches.Latches set, so no other connection can read, write or check those keys, and no other transaction can
// claim them, until this one ends. While it is open, keyed commands on held keys are not executed; they are recorded
// with a timestamp and acknowledged. COMMIT replays the recorded commands against storage in order and returns their
// responses. ABORT discards them.
//
// Every transaction carries an expiration time fixed at creation. Expiry is detected lazily: nothing evicts an
// expired transaction until the next command on its connection finds it, at which point its latches are released.
//
// A Txn holds no reference to the latch set. The owner of a Txn (kv/server.Session) latches Keys on creation and
// releases exactly Keys when it erases the transaction, so the two always move together.
package transaction
