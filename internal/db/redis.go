package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/models"
)

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// statsKey builds the daily counter hash key for a creative/placement pair.
func statsKey(date string, creativeID, placementID int) string {
	return fmt.Sprintf("stats:%s:%d:%d", date, creativeID, placementID)
}

// zoneCacheKey builds the creative cache key for a zone.
func zoneCacheKey(zone string) string {
	return fmt.Sprintf("zone:%s:creatives", zone)
}

// fcapKey builds the per-user frequency counter key for a campaign.
func fcapKey(campaignID int, uid string) string {
	return fmt.Sprintf("fcap:%d:%s", campaignID, uid)
}

// IncrementImpression bumps today's impression counter for the
// creative/placement pair. The hash TTL is refreshed on every increment so
// the counters survive until the flush job drains them.
func (r *RedisStore) IncrementImpression(creativeID, placementID int, ttl time.Duration) error {
	return r.incrementField(creativeID, placementID, "impressions", ttl)
}

// IncrementClick bumps today's click counter for the creative/placement pair.
func (r *RedisStore) IncrementClick(creativeID, placementID int, ttl time.Duration) error {
	return r.incrementField(creativeID, placementID, "clicks", ttl)
}

// IncrementViewable bumps today's viewable impression counter for the
// creative/placement pair.
func (r *RedisStore) IncrementViewable(creativeID, placementID int, ttl time.Duration) error {
	return r.incrementField(creativeID, placementID, "viewable", ttl)
}

func (r *RedisStore) incrementField(creativeID, placementID int, field string, ttl time.Duration) error {
	key := statsKey(time.Now().UTC().Format("2006-01-02"), creativeID, placementID)
	if err := r.Client.HIncrBy(r.Ctx, key, field, 1).Err(); err != nil {
		return err
	}
	return r.Client.Expire(r.Ctx, key, ttl).Err()
}

// FrequencyCount returns how many capped impressions the user has
// accumulated for a campaign inside the current window.
func (r *RedisStore) FrequencyCount(campaignID int, uid string) (int64, error) {
	n, err := r.Client.Get(r.Ctx, fcapKey(campaignID, uid)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// IncrementFrequency records one served impression against the user's
// per-campaign frequency counter and refreshes the window TTL.
func (r *RedisStore) IncrementFrequency(campaignID int, uid string, window time.Duration) error {
	key := fcapKey(campaignID, uid)
	if err := r.Client.Incr(r.Ctx, key).Err(); err != nil {
		return err
	}
	return r.Client.Expire(r.Ctx, key, window).Err()
}

// GetZoneEntry fetches the cached creative set for a zone. A cache miss
// returns (nil, nil).
func (r *RedisStore) GetZoneEntry(zone string) (*models.ZoneEntry, error) {
	raw, err := r.Client.Get(r.Ctx, zoneCacheKey(zone)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry models.ZoneEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode zone cache entry: %w", err)
	}
	return &entry, nil
}

// PutZoneEntry caches the creative set for a zone with the given TTL.
// Entries with no creatives are never cached so new inventory shows up as
// soon as it is attached.
func (r *RedisStore) PutZoneEntry(zone string, entry *models.ZoneEntry, ttl time.Duration) error {
	if entry == nil || len(entry.Creatives) == 0 {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode zone cache entry: %w", err)
	}
	return r.Client.Set(r.Ctx, zoneCacheKey(zone), raw, ttl).Err()
}

// CounterKeys scans for today's pending stats counter keys.
func (r *RedisStore) CounterKeys(date string) ([]string, error) {
	var keys []string
	var cursor uint64
	pattern := fmt.Sprintf("stats:%s:*", date)
	for {
		batch, next, err := r.Client.Scan(r.Ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// ReadCounter returns the impression/click/viewable fields of a stats hash.
// Missing fields read as zero.
func (r *RedisStore) ReadCounter(key string) (impressions, clicks, viewable int64, err error) {
	vals, err := r.Client.HGetAll(r.Ctx, key).Result()
	if err != nil {
		return 0, 0, 0, err
	}
	parse := func(field string) int64 {
		n, _ := strconv.ParseInt(vals[field], 10, 64)
		return n
	}
	return parse("impressions"), parse("clicks"), parse("viewable"), nil
}

// DeleteCounter removes a drained stats hash.
func (r *RedisStore) DeleteCounter(key string) error {
	return r.Client.Del(r.Ctx, key).Err()
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
