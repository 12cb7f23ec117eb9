package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klimakov/adrotator/internal/db"
	"github.com/klimakov/adrotator/internal/models"
	"github.com/klimakov/adrotator/internal/observability"
)

type memStatsStore struct {
	upserts []models.DailyStat
	failFor map[int]bool
}

func (m *memStatsStore) UpsertDailyStat(ctx context.Context, s models.DailyStat) error {
	if m.failFor[s.CreativeID] {
		return errors.New("pg down")
	}
	m.upserts = append(m.upserts, s)
	return nil
}

func newFlushFixture(t *testing.T) (*Flusher, *memStatsStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	store := &db.RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Ctx:    context.Background(),
	}
	t.Cleanup(func() { _ = store.Client.Close() })
	stats := &memStatsStore{failFor: map[int]bool{}}
	return &Flusher{Store: store, Stats: stats, Metrics: &observability.MockMetricsRegistry{}}, stats, mr
}

func setCounter(mr *miniredis.Miniredis, date string, creative, placement int, imps, clicks, viewable string) {
	key := fmt.Sprintf("stats:%s:%d:%d", date, creative, placement)
	if imps != "" {
		mr.HSet(key, "impressions", imps)
	}
	if clicks != "" {
		mr.HSet(key, "clicks", clicks)
	}
	if viewable != "" {
		mr.HSet(key, "viewable", viewable)
	}
}

func withFixedNow(t *testing.T, ts time.Time) {
	t.Helper()
	orig := nowFn
	nowFn = func() time.Time { return ts }
	t.Cleanup(func() { nowFn = orig })
}

func TestFlusherDrainsCounters(t *testing.T) {
	f, stats, mr := newFlushFixture(t)
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	withFixedNow(t, now)

	setCounter(mr, "2026-01-02", 1, 10, "5", "2", "1")
	setCounter(mr, "2026-01-02", 2, 10, "3", "", "")
	setCounter(mr, "2026-01-01", 9, 10, "7", "", "") // yesterday, out of scope

	n, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, stats.upserts, 2)

	byCreative := map[int]models.DailyStat{}
	for _, s := range stats.upserts {
		byCreative[s.CreativeID] = s
	}
	assert.Equal(t, int64(5), byCreative[1].Impressions)
	assert.Equal(t, int64(2), byCreative[1].Clicks)
	assert.Equal(t, int64(1), byCreative[1].ViewableImpressions)
	assert.Equal(t, "2026-01-02", byCreative[1].Date)
	assert.Equal(t, int64(3), byCreative[2].Impressions)

	// Flushed counters are deleted, out-of-scope ones stay.
	assert.False(t, mr.Exists("stats:2026-01-02:1:10"))
	assert.False(t, mr.Exists("stats:2026-01-02:2:10"))
	assert.True(t, mr.Exists("stats:2026-01-01:9:10"))
}

func TestFlusherSkipsZeroCounters(t *testing.T) {
	f, stats, mr := newFlushFixture(t)
	withFixedNow(t, time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))

	setCounter(mr, "2026-01-02", 1, 10, "0", "0", "0")

	n, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, stats.upserts)
}

func TestFlusherIsolatesFailingKeys(t *testing.T) {
	f, stats, mr := newFlushFixture(t)
	withFixedNow(t, time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))

	setCounter(mr, "2026-01-02", 1, 10, "5", "", "")
	setCounter(mr, "2026-01-02", 2, 10, "3", "", "")
	stats.failFor[1] = true

	n, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The failed counter survives for the next run.
	assert.True(t, mr.Exists("stats:2026-01-02:1:10"))
	assert.False(t, mr.Exists("stats:2026-01-02:2:10"))
}

func TestFlusherIgnoresMalformedKeys(t *testing.T) {
	f, _, mr := newFlushFixture(t)
	withFixedNow(t, time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))

	mr.HSet("stats:2026-01-02:not-a-number:10", "impressions", "5")

	n, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestParseCounterKey(t *testing.T) {
	c, p, ok := parseCounterKey("stats:2026-01-02:17:4")
	assert.True(t, ok)
	assert.Equal(t, 17, c)
	assert.Equal(t, 4, p)

	_, _, ok = parseCounterKey("stats:2026-01-02:17")
	assert.False(t, ok)
	_, _, ok = parseCounterKey("stats:2026-01-02:x:4")
	assert.False(t, ok)
}
