package jobs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/db"
	"github.com/klimakov/adrotator/internal/models"
	"github.com/klimakov/adrotator/internal/observability"
)

// StatsStore is the durable sink for flushed counters. Satisfied by
// db.Postgres.
type StatsStore interface {
	UpsertDailyStat(ctx context.Context, s models.DailyStat) error
}

// nowFn is the flush clock, replaceable in tests.
var nowFn = time.Now

// Flusher drains today's pending Redis counters into daily_stats rows.
// A counter read between the HGETALL and the DEL is lost; the aggregates
// are approximate by contract.
type Flusher struct {
	Store   *db.RedisStore
	Stats   StatsStore
	Metrics observability.MetricsRegistry
}

// Run flushes all pending counters for the current date and returns how
// many were drained. Per-key failures are logged and skipped so one bad
// counter cannot block the batch.
func (f *Flusher) Run(ctx context.Context) (int, error) {
	date := nowFn().UTC().Format("2006-01-02")
	keys, err := f.Store.CounterKeys(date)
	if err != nil {
		f.Metrics.IncrementFlushErrors()
		return 0, fmt.Errorf("scan counters: %w", err)
	}

	flushed := 0
	for _, key := range keys {
		creativeID, placementID, ok := parseCounterKey(key)
		if !ok {
			zap.L().Warn("malformed counter key", zap.String("key", key))
			continue
		}
		imps, clicks, viewable, err := f.Store.ReadCounter(key)
		if err != nil {
			zap.L().Error("read counter", zap.Error(err), zap.String("key", key))
			f.Metrics.IncrementFlushErrors()
			continue
		}
		if imps == 0 && clicks == 0 && viewable == 0 {
			continue
		}
		stat := models.DailyStat{
			Date:                date,
			CreativeID:          creativeID,
			PlacementID:         placementID,
			Impressions:         imps,
			Clicks:              clicks,
			ViewableImpressions: viewable,
		}
		if err := f.Stats.UpsertDailyStat(ctx, stat); err != nil {
			zap.L().Error("flush counter", zap.Error(err), zap.String("key", key))
			f.Metrics.IncrementFlushErrors()
			continue
		}
		if err := f.Store.DeleteCounter(key); err != nil {
			zap.L().Error("delete counter", zap.Error(err), zap.String("key", key))
			f.Metrics.IncrementFlushErrors()
			continue
		}
		flushed++
	}
	f.Metrics.AddFlushedCounters(flushed)
	return flushed, nil
}

// RunJob adapts Run to the RunPeriodic signature.
func (f *Flusher) RunJob(ctx context.Context) error {
	n, err := f.Run(ctx)
	if err == nil && n > 0 {
		zap.L().Info("stats flushed", zap.Int("counters", n))
	}
	return err
}

// parseCounterKey splits "stats:{date}:{creativeID}:{placementID}".
func parseCounterKey(key string) (creativeID, placementID int, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		return 0, 0, false
	}
	creativeID, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, false
	}
	placementID, err = strconv.Atoi(parts[3])
	if err != nil {
		return 0, 0, false
	}
	return creativeID, placementID, true
}
