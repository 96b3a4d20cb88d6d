package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SessionsCreated counts sessions opened through the registry.
var SessionsCreated = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "swapdesk_sessions_created_total",
		Help: "Total number of exchange sessions created",
	},
)

// SessionsTerminal counts sessions reaching a terminal state, by outcome
// (settled/cancelled/failed).
var SessionsTerminal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "swapdesk_sessions_terminal_total",
		Help: "Total number of sessions reaching a terminal state by outcome",
	},
	[]string{"outcome"},
)

// TimeoutCancels counts cancellations attributed to the timeout supervisor.
var TimeoutCancels = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "swapdesk_timeout_cancels_total",
		Help: "Total number of sessions cancelled by the timeout supervisor",
	},
)

// SettlementLatency records latency distribution for settlement execution.
var SettlementLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "swapdesk_settlement_latency_seconds",
		Help:    "Latency in seconds to re-validate and commit a settlement",
		Buckets: prometheus.DefBuckets,
	},
)

// ActiveSessions tracks the number of non-terminal sessions in the registry.
var ActiveSessions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "swapdesk_active_sessions",
		Help: "Current number of non-terminal sessions",
	},
)

func init() {
	prometheus.MustRegister(SessionsCreated, SessionsTerminal, TimeoutCancels)
	prometheus.MustRegister(SettlementLatency, ActiveSessions)
}
