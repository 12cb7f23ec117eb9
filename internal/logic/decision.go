package logic

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/db"
	"github.com/klimakov/adrotator/internal/models"
)

// Inventory resolves placements and their eligible creatives from durable
// storage. Satisfied by db.Postgres; tests provide in-memory fakes.
type Inventory interface {
	PlacementByZone(ctx context.Context, zoneKey string) (*models.Placement, error)
	EligibleCreatives(ctx context.Context, placementID int) ([]models.Creative, error)
}

// Decision is the result of a successful ad selection.
type Decision struct {
	Placement models.Placement
	Creative  models.Creative
}

// Engine runs the decision path: zone cache, eligibility resolution,
// frequency filtering and weighted selection.
type Engine struct {
	Store           *db.RedisStore
	Inventory       Inventory
	CacheTTL        time.Duration
	FrequencyWindow time.Duration
}

// Decide selects the creative to serve for a zone and user. It returns
// (nil, nil) when there is no eligible inventory. Cache failures degrade to
// resolver reads; resolver failures are returned to the caller.
func (e *Engine) Decide(ctx context.Context, zone, uid string) (*Decision, error) {
	entry := e.cachedEntry(zone)
	if entry == nil {
		placement, err := e.Inventory.PlacementByZone(ctx, zone)
		if err != nil {
			return nil, fmt.Errorf("resolve placement: %w", err)
		}
		if placement == nil {
			return nil, nil
		}
		creatives, err := e.Inventory.EligibleCreatives(ctx, placement.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve creatives: %w", err)
		}
		entry = &models.ZoneEntry{Placement: *placement, Creatives: creatives}
		if e.Store != nil && len(creatives) > 0 {
			if err := e.Store.PutZoneEntry(zone, entry, e.CacheTTL); err != nil {
				zap.L().Error("zone cache put", zap.Error(err), zap.String("zone", zone))
			}
		}
	}

	candidates := FilterByFrequency(e.Store, uid, entry.Creatives)
	creative := SelectWeighted(candidates)
	if creative == nil {
		return nil, nil
	}
	return &Decision{Placement: entry.Placement, Creative: *creative}, nil
}

// RecordServe applies the side effects of a served decision: the impression
// counter for flush aggregation and, when the campaign is capped, the user's
// frequency counter. Callers invoke it from a detached goroutine; errors are
// logged and dropped.
func (e *Engine) RecordServe(d *Decision, uid string, counterTTL time.Duration) {
	if e.Store == nil || d == nil {
		return
	}
	if err := e.Store.IncrementImpression(d.Creative.ID, d.Placement.ID, counterTTL); err != nil {
		zap.L().Error("impression counter", zap.Error(err), zap.Int("creative_id", d.Creative.ID))
	}
	if d.Creative.CampaignFrequencyCap != nil && *d.Creative.CampaignFrequencyCap > 0 {
		if err := e.Store.IncrementFrequency(d.Creative.CampaignID, uid, e.FrequencyWindow); err != nil {
			zap.L().Error("frequency counter", zap.Error(err), zap.Int("campaign_id", d.Creative.CampaignID))
		}
	}
}

// cachedEntry reads the zone cache, treating any failure as a miss.
func (e *Engine) cachedEntry(zone string) *models.ZoneEntry {
	if e.Store == nil {
		return nil
	}
	entry, err := e.Store.GetZoneEntry(zone)
	if err != nil {
		zap.L().Error("zone cache get", zap.Error(err), zap.String("zone", zone))
		return nil
	}
	if entry == nil || len(entry.Creatives) == 0 {
		return nil
	}
	return entry
}
