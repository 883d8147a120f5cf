// Package metrics holds the Prometheus collectors of the quote engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Adapter call outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomePanic       = "panic"
	OutcomeUnsupported = "unsupported"
)

var (
	AdapterCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoteengine_adapter_calls_total",
			Help: "Provider adapter calls by outcome",
		},
		[]string{"adapter", "outcome"},
	)
	AdapterDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quoteengine_adapter_duration_milliseconds",
			Help:    "Provider adapter call duration in milliseconds",
			Buckets: []float64{25, 50, 100, 250, 500, 1000, 2000, 4000, 8000},
		},
		[]string{"adapter"},
	)
	FallbackRounds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quoteengine_fallback_rounds_total",
			Help: "Aggregation rounds answered by the synthetic quote generator",
		},
	)
	QuotesReturned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoteengine_quotes_returned_total",
			Help: "Quotes returned to callers by source",
		},
		[]string{"source"},
	)
	Purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoteengine_purchases_total",
			Help: "Purchase attempts by source and result",
		},
		[]string{"source", "result"},
	)
	CommissionEarned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quoteengine_commission_earned_total",
			Help: "Commission recorded on confirmed purchases, in whole currency units",
		},
		[]string{"provider", "currency"},
	)
)

func init() {
	prometheus.MustRegister(AdapterCalls)
	prometheus.MustRegister(AdapterDuration)
	prometheus.MustRegister(FallbackRounds)
	prometheus.MustRegister(QuotesReturned)
	prometheus.MustRegister(Purchases)
	prometheus.MustRegister(CommissionEarned)
}

// ObserveAdapter records one adapter call.
func ObserveAdapter(adapter, outcome string, d time.Duration) {
	AdapterCalls.WithLabelValues(adapter, outcome).Inc()
	AdapterDuration.WithLabelValues(adapter).Observe(float64(d.Milliseconds()))
}
