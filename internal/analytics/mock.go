package analytics

import (
	"context"
	"sync"
)

// Compile-time check that MockAnalytics implements AnalyticsService.
var _ AnalyticsService = (*MockAnalytics)(nil)

// MockAnalytics captures events in memory for tests. Handlers record from
// detached goroutines, so access is serialized.
type MockAnalytics struct {
	mu     sync.Mutex
	events []Event
}

// NewMockAnalytics creates a new mock analytics service.
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordEvent captures the event in memory.
func (m *MockAnalytics) RecordEvent(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Recorded returns a copy of the events captured so far.
func (m *MockAnalytics) Recorded() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
