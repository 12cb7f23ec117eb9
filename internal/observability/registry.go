package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics,
// so handlers and jobs depend on an injected registry rather than global
// Prometheus state.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Decision path metrics
	IncrementDecisions(result string)

	// Event tracking metrics
	IncrementEvent(eventType string)
	IncrementCounterErrors()

	// Webhook metrics
	IncrementWebhooks(outcome string)

	// Flush job metrics
	AddFlushedCounters(n int)
	IncrementFlushErrors()

	// Rate limiting metrics
	IncrementRateLimitRequests()
	IncrementRateLimitHits()
}

// PrometheusRegistry implements MetricsRegistry on the global Prometheus metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementDecisions(result string) {
	DecisionCount.WithLabelValues(result).Inc()
}

func (r *PrometheusRegistry) IncrementEvent(eventType string) {
	EventCount.WithLabelValues(eventType).Inc()
}

func (r *PrometheusRegistry) IncrementCounterErrors() {
	CounterErrors.Inc()
}

func (r *PrometheusRegistry) IncrementWebhooks(outcome string) {
	WebhookCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) AddFlushedCounters(n int) {
	FlushedCounters.Add(float64(n))
}

func (r *PrometheusRegistry) IncrementFlushErrors() {
	FlushErrors.Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitRequests() {
	RateLimitRequests.Inc()
}

func (r *PrometheusRegistry) IncrementRateLimitHits() {
	RateLimitHits.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry.
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementDecisions(result string)                                     {}
func (r *NoOpRegistry) IncrementEvent(eventType string)                                      {}
func (r *NoOpRegistry) IncrementCounterErrors()                                              {}
func (r *NoOpRegistry) IncrementWebhooks(outcome string)                                     {}
func (r *NoOpRegistry) AddFlushedCounters(n int)                                             {}
func (r *NoOpRegistry) IncrementFlushErrors()                                                {}
func (r *NoOpRegistry) IncrementRateLimitRequests()                                          {}
func (r *NoOpRegistry) IncrementRateLimitHits()                                              {}
