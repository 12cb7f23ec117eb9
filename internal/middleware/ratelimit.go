package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/logic"
	"github.com/klimakov/adrotator/internal/ratelimit"
)

// WithRateLimit returns middleware that rejects requests with 429 when the
// client's token bucket is exhausted.
func WithRateLimit(limiter *ratelimit.ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := logic.ClientIP(r)
			if !limiter.Allow(ip) {
				zap.L().Debug("rate limited", zap.String("client_ip", ip), zap.String("path", r.URL.Path))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
