package command

// Responses a node or the quorum client can return. They are part of the wire protocol and must not change.
const (
	Success                = "Successful command: "
	Acknowledged           = "Command acknowledged"
	InsufficientArguments  = "Incorrect Number of Arguments on Command"
	DuplicateKeys          = "Duplicate Keys detected in TRANSACT"
	UnsupportedCommand     = "Unsupported command"
	InvalidTransactionCmd  = "Invalid Transaction Command"
	Null                   = "null"
	KeyLocked              = "Requested key(s) is locked"
	TransactionNotExist    = "No such transaction exists"
	EmptyTransaction       = "Transaction has no history. Nothing committed"
	TransactionInProgress  = "Transaction In Progress"
	TransactionExpired     = "Transaction expired"
	TransactionDoesNotHave = "Transaction does not have key"
	NoWrites               = "No writes submitted"
	ShutdownInProgress     = "Shutdown in progress. Cannot accept new commands"
	KeyNotInQuorum         = "Key does not exist within current quorum"
	ServerError            = "Server Error"
	Timeout                = "Timeout"
	UnknownClient          = "Unknown client"
)

// ValueOrNull substitutes Null for an empty result so a missing value is never confused with a protocol error.
func ValueOrNull(v string) string {
	if v == "" {
		return Null
	}
	return v
}
