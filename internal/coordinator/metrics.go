package coordinator

import "github.com/prometheus/client_golang/prometheus"

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dialogd",
			Subsystem: "coordinator",
			Name:      "turns_total",
			Help:      "Finished generation turns by outcome",
		},
		[]string{"outcome"},
	)

	cacheDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dialogd",
			Subsystem: "coordinator",
			Name:      "cache_decisions_total",
			Help:      "Context window decisions by state",
		},
		[]string{"state"},
	)

	promptTokensTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dialogd",
		Subsystem: "coordinator",
		Name:      "prompt_tokens_total",
		Help:      "Prompt tokens written to the engine cache",
	})

	generatedTokensTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dialogd",
		Subsystem: "coordinator",
		Name:      "generated_tokens_total",
		Help:      "Tokens generated and delivered to consumers",
	})

	turnDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dialogd",
		Subsystem: "coordinator",
		Name:      "turn_duration_seconds",
		Help:      "Duration of generation turns on the worker",
		Buckets:   prometheus.DefBuckets,
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dialogd",
		Subsystem: "coordinator",
		Name:      "queue_depth",
		Help:      "Jobs waiting for the worker",
	})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dialogd",
		Subsystem: "coordinator",
		Name:      "active_sessions",
		Help:      "Sessions queued or running",
	})

	cancellationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dialogd",
		Subsystem: "coordinator",
		Name:      "cancellations_total",
		Help:      "Sessions cancelled by callers",
	})

	evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dialogd",
		Subsystem: "coordinator",
		Name:      "evictions_total",
		Help:      "Conversations evicted to stay under the conversation limit",
	})
)

func init() {
	prometheus.MustRegister(
		turnsTotal, cacheDecisions, promptTokensTotal, generatedTokensTotal,
		turnDuration, queueDepth, activeSessions, cancellationsTotal, evictionsTotal,
	)
}

func startTurnTimer() *prometheus.Timer { return prometheus.NewTimer(turnDuration) }
