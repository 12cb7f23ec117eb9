package observability

import "time"

// MockMetricsRegistry is a mock implementation of MetricsRegistry for testing.
type MockMetricsRegistry struct{}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementDecisions(result string)                                     {}
func (m *MockMetricsRegistry) IncrementEvent(eventType string)                                      {}
func (m *MockMetricsRegistry) IncrementCounterErrors()                                              {}
func (m *MockMetricsRegistry) IncrementWebhooks(outcome string)                                     {}
func (m *MockMetricsRegistry) AddFlushedCounters(n int)                                             {}
func (m *MockMetricsRegistry) IncrementFlushErrors()                                                {}
func (m *MockMetricsRegistry) IncrementRateLimitRequests()                                          {}
func (m *MockMetricsRegistry) IncrementRateLimitHits()                                              {}
