package models

// DailyStat is the durable aggregate row keyed by (date, creative,
// placement). Upserts are additive: flushing a counter adds its value to
// the existing row, so a single flush of value N is idempotent under the
// one-flush-per-counter contract.
type DailyStat struct {
	Date                string `json:"date"`
	CreativeID          int    `json:"creative_id"`
	PlacementID         int    `json:"placement_id"`
	Impressions         int64  `json:"impressions"`
	Clicks              int64  `json:"clicks"`
	ViewableImpressions int64  `json:"viewable_impressions"`
}

// CreativePerformance is one creative's trailing-window totals used by the
// A/B weight recalculator.
type CreativePerformance struct {
	CreativeID  int
	Weight      int
	Impressions int64
	Clicks      int64
}
