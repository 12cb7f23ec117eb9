package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adrotator_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adrotator_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// decision outcomes: served, no_placement, no_creative
	DecisionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adrotator_decisions_total",
			Help: "Total ad decisions by result",
		},
		[]string{"result"},
	)

	// tracked events by type: impression, click, viewable
	EventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adrotator_events_total",
			Help: "Total tracked events by type",
		},
		[]string{"type"},
	)

	// failed detached counter increments (logged and dropped)
	CounterErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adrotator_counter_errors_total",
			Help: "Total failed event counter increments",
		},
	)

	// webhook dispatch outcomes: delivered, failed, rejected
	WebhookCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adrotator_webhooks_total",
			Help: "Total webhook dispatch attempts by outcome",
		},
		[]string{"outcome"},
	)

	// counters merged into daily_stats by the flush job
	FlushedCounters = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adrotator_flushed_counters_total",
			Help: "Total counter keys flushed into daily stats",
		},
	)

	// per-key flush failures
	FlushErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adrotator_flush_errors_total",
			Help: "Total counter keys that failed to flush",
		},
	)

	// rate limiter activity per client outcome
	RateLimitRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adrotator_ratelimit_requests_total",
			Help: "Total requests checked by the rate limiter",
		},
	)

	RateLimitHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adrotator_ratelimit_hits_total",
			Help: "Total requests rejected by the rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		DecisionCount,
		EventCount,
		CounterErrors,
		WebhookCount,
		FlushedCounters,
		FlushErrors,
		RateLimitRequests,
		RateLimitHits,
	)
}
