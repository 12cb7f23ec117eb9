package logic

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/db"
	"github.com/klimakov/adrotator/internal/models"
)

func fcapKey(campaignID int, uid string) string {
	return fmt.Sprintf("fcap:%d:%s", campaignID, uid)
}

// CampaignCaps collects the per-campaign frequency cap from a creative set.
// The first positive cap seen for a campaign wins; campaigns without a
// positive cap are uncapped and absent from the map.
func CampaignCaps(creatives []models.Creative) map[int]int {
	caps := make(map[int]int)
	for _, c := range creatives {
		if c.CampaignFrequencyCap == nil || *c.CampaignFrequencyCap <= 0 {
			continue
		}
		if _, ok := caps[c.CampaignID]; !ok {
			caps[c.CampaignID] = *c.CampaignFrequencyCap
		}
	}
	return caps
}

// FilterByFrequency removes creatives whose campaign has exhausted its
// per-user frequency cap. Any Redis failure fails open: the affected
// campaign is treated as uncapped.
func FilterByFrequency(store *db.RedisStore, uid string, creatives []models.Creative) []models.Creative {
	caps := CampaignCaps(creatives)
	if len(caps) == 0 {
		return creatives
	}

	counts, err := frequencyCounts(store, uid, caps)
	if err != nil {
		if !errors.Is(err, ErrNilRedisStore) {
			zap.L().Error("frequency counts", zap.Error(err))
		}
		return creatives
	}

	overCap := make(map[int]bool)
	for campaignID, limit := range caps {
		if counts[campaignID] >= int64(limit) {
			overCap[campaignID] = true
		}
	}
	if len(overCap) == 0 {
		return creatives
	}

	filtered := creatives[:0:0]
	for _, c := range creatives {
		if !overCap[c.CampaignID] {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// frequencyCounts reads the per-user counter for each capped campaign. A
// single capped campaign is a plain GET; more go through one pipeline.
// Returns ErrNilRedisStore when no store is configured. Individual missing
// or unreadable counters read as zero.
func frequencyCounts(store *db.RedisStore, uid string, caps map[int]int) (map[int]int64, error) {
	if store == nil || store.Client == nil {
		return nil, ErrNilRedisStore
	}

	counts := make(map[int]int64, len(caps))

	if len(caps) == 1 {
		for campaignID := range caps {
			count, err := store.FrequencyCount(campaignID, uid)
			if err != nil {
				return nil, fmt.Errorf("frequency count: %w", err)
			}
			counts[campaignID] = count
		}
		return counts, nil
	}

	pipe := store.Client.Pipeline()
	commands := make(map[int]*redis.StringCmd, len(caps))
	for campaignID := range caps {
		commands[campaignID] = pipe.Get(store.Ctx, fcapKey(campaignID, uid))
	}
	if _, err := pipe.Exec(store.Ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("frequency pipeline exec: %w", err)
	}

	for campaignID, cmd := range commands {
		count, err := cmd.Int64()
		if err != nil {
			count = 0
		}
		counts[campaignID] = count
	}
	return counts, nil
}
