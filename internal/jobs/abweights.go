package jobs

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/models"
)

// A/B recompute tuning. Creatives under the impression threshold keep their
// static weight; the CTR boost is capped so one lucky click cannot blow a
// weight out.
const (
	MinImpressions = 50
	CTRBoost       = 20
	MaxWeight      = 100
	LookbackDays   = 2
)

// PerformanceStore loads recent creative performance and applies the
// recomputed weights. Satisfied by db.Postgres.
type PerformanceStore interface {
	CreativePerformance(ctx context.Context, lookbackDays int) ([]models.CreativePerformance, error)
	ApplyEffectiveWeights(ctx context.Context, weights map[int]int) error
}

// Recalculator recomputes effective creative weights from recent CTR.
type Recalculator struct {
	Stats PerformanceStore
}

// ComputeEffectiveWeight derives the A/B weight for a creative from its
// static weight and recent performance: weight * (1 + ctr * 20), clamped to
// [1, 100]. Without impressions the CTR is undefined and the static weight
// is clamped as-is.
func ComputeEffectiveWeight(weight int, impressions, clicks int64) int {
	var ctr float64
	if impressions > 0 {
		ctr = float64(clicks) / float64(impressions)
	}
	w := int(math.Round(float64(weight) * (1 + ctr*CTRBoost)))
	if w < 1 {
		return 1
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}

// Run performs one full recompute: every creative with at least
// MinImpressions over the lookback window gets a fresh effective weight,
// everything else reverts to its static weight.
func (r *Recalculator) Run(ctx context.Context) error {
	perf, err := r.Stats.CreativePerformance(ctx, LookbackDays)
	if err != nil {
		return fmt.Errorf("load creative performance: %w", err)
	}

	weights := make(map[int]int)
	for _, p := range perf {
		if p.Impressions < MinImpressions {
			continue
		}
		weights[p.CreativeID] = ComputeEffectiveWeight(p.Weight, p.Impressions, p.Clicks)
	}
	if err := r.Stats.ApplyEffectiveWeights(ctx, weights); err != nil {
		return fmt.Errorf("apply effective weights: %w", err)
	}
	zap.L().Info("effective weights recomputed", zap.Int("updated", len(weights)))
	return nil
}
