// Package jobs holds the background maintenance loops: draining event
// counters into daily aggregates and recomputing A/B creative weights.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunPeriodic invokes fn every interval until the context is cancelled.
// Errors from fn are logged and the loop keeps running.
func RunPeriodic(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	zap.L().Info("background job started", zap.String("job", name), zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("background job stopped", zap.String("job", name))
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				zap.L().Error("background job run failed", zap.String("job", name), zap.Error(err))
			}
		}
	}
}
