package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/treekv/treekv/kv/command"
)

const (
	txnBegun     = "begin"
	txnLocked    = "locked"
	txnCommitted = "commit"
	txnAborted   = "abort"
	txnExpired   = "expired"
	txnDropped   = "dropped"
)

var (
	commandCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treekv",
			Subsystem: "server",
			Name:      "commands_total",
			Help:      "Counter of handled commands.",
		}, []string{"type", "result"})

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "treekv",
			Subsystem: "server",
			Name:      "handle_command_duration_seconds",
			Help:      "Bucketed histogram of processing time (s) of handled commands.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"type"})

	transactionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treekv",
			Subsystem: "server",
			Name:      "transactions_total",
			Help:      "Counter of transaction lifecycle events.",
		}, []string{"result"})

	sessionGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "treekv",
			Subsystem: "server",
			Name:      "sessions",
			Help:      "Number of open client sessions.",
		})

	latchedKeysGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "treekv",
			Subsystem: "server",
			Name:      "latched_keys",
			Help:      "Number of keys held by open transactions.",
		})
)

func init() {
	prometheus.MustRegister(commandCounter)
	prometheus.MustRegister(commandDuration)
	prometheus.MustRegister(transactionCounter)
	prometheus.MustRegister(sessionGauge)
	prometheus.MustRegister(latchedKeysGauge)
}

var resultLabels = map[string]string{
	command.Acknowledged:           "ack",
	command.InsufficientArguments:  "bad_arity",
	command.UnsupportedCommand:     "unsupported",
	command.InvalidTransactionCmd:  "invalid_txn_command",
	command.KeyLocked:              "locked",
	command.TransactionNotExist:    "no_txn",
	command.EmptyTransaction:       "empty_txn",
	command.TransactionInProgress:  "txn_in_progress",
	command.TransactionExpired:     "expired",
	command.TransactionDoesNotHave: "key_not_held",
	command.NoWrites:               "no_writes",
	command.ShutdownInProgress:     "shutting_down",
	command.ServerError:            "error",
}

// resultLabel buckets a response into a small label set. Values and commit output count as "ok".
func resultLabel(resp string) string {
	if l, ok := resultLabels[resp]; ok {
		return l
	}
	return "ok"
}
