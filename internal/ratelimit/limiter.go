package ratelimit

import (
	"sync"

	"github.com/klimakov/adrotator/internal/observability"
)

// Config holds the configuration for rate limiting.
type Config struct {
	Capacity   int  // Token bucket capacity (burst allowance)
	RefillRate int  // Tokens added per second (sustained rate)
	Enabled    bool // Whether rate limiting is active
}

// ClientLimiter manages per-client rate limiting. Each client address gets
// its own token bucket, created lazily on first access.
type ClientLimiter struct {
	buckets map[string]*TokenBucket
	mu      sync.RWMutex
	config  Config
	metrics observability.MetricsRegistry
}

// NewClientLimiter creates a client rate limiter with the given
// configuration. A nil metrics registry disables limiter metrics.
func NewClientLimiter(config Config, metrics observability.MetricsRegistry) *ClientLimiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &ClientLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
		metrics: metrics,
	}
}

// Allow reports whether a request from the given client should be served.
// When rate limiting is disabled it always returns true.
func (cl *ClientLimiter) Allow(clientIP string) bool {
	if !cl.config.Enabled {
		return true
	}

	cl.metrics.IncrementRateLimitRequests()

	cl.mu.RLock()
	bucket, exists := cl.buckets[clientIP]
	cl.mu.RUnlock()

	if !exists {
		// Double-checked locking to avoid racing bucket creation
		cl.mu.Lock()
		bucket, exists = cl.buckets[clientIP]
		if !exists {
			bucket = NewTokenBucket(cl.config.Capacity, cl.config.RefillRate)
			cl.buckets[clientIP] = bucket
		}
		cl.mu.Unlock()
	}

	allowed := bucket.Allow()
	if !allowed {
		cl.metrics.IncrementRateLimitHits()
	}
	return allowed
}
