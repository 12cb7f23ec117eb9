package logic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klimakov/adrotator/internal/models"
)

// fakeInventory serves canned placements and creatives and counts lookups.
type fakeInventory struct {
	placement *models.Placement
	creatives []models.Creative
	err       error

	placementCalls int
	creativeCalls  int
}

func (f *fakeInventory) PlacementByZone(ctx context.Context, zoneKey string) (*models.Placement, error) {
	f.placementCalls++
	return f.placement, f.err
}

func (f *fakeInventory) EligibleCreatives(ctx context.Context, placementID int) ([]models.Creative, error) {
	f.creativeCalls++
	return f.creatives, f.err
}

func testEngine(t *testing.T, inv Inventory) *Engine {
	t.Helper()
	store, _ := newTestRedis(t)
	return &Engine{
		Store:           store,
		Inventory:       inv,
		CacheTTL:        time.Minute,
		FrequencyWindow: 24 * time.Hour,
	}
}

func TestDecideUnknownZone(t *testing.T) {
	eng := testEngine(t, &fakeInventory{})
	d, err := eng.Decide(context.Background(), "nope", "user-one")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDecideNoEligibleCreatives(t *testing.T) {
	inv := &fakeInventory{placement: &models.Placement{ID: 1, ZoneKey: "top"}}
	eng := testEngine(t, inv)
	d, err := eng.Decide(context.Background(), "top", "user-one")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDecideSelectsAndReturnsPlacement(t *testing.T) {
	inv := &fakeInventory{
		placement: &models.Placement{ID: 5, ZoneKey: "top", Width: 728, Height: 90},
		creatives: []models.Creative{{ID: 1, CampaignID: 2, Weight: 10}},
	}
	eng := testEngine(t, inv)

	d, err := eng.Decide(context.Background(), "top", "user-one")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 5, d.Placement.ID)
	assert.Equal(t, 1, d.Creative.ID)
}

func TestDecideCachesCreativeSet(t *testing.T) {
	inv := &fakeInventory{
		placement: &models.Placement{ID: 5, ZoneKey: "top"},
		creatives: []models.Creative{{ID: 1, CampaignID: 2, Weight: 10}},
	}
	eng := testEngine(t, inv)

	for i := 0; i < 3; i++ {
		d, err := eng.Decide(context.Background(), "top", "user-one")
		require.NoError(t, err)
		require.NotNil(t, d)
	}
	// Only the first decision should reach the resolver.
	assert.Equal(t, 1, inv.placementCalls)
	assert.Equal(t, 1, inv.creativeCalls)
}

func TestDecideNeverCachesEmptySets(t *testing.T) {
	inv := &fakeInventory{placement: &models.Placement{ID: 5, ZoneKey: "top"}}
	eng := testEngine(t, inv)

	for i := 0; i < 3; i++ {
		d, err := eng.Decide(context.Background(), "top", "user-one")
		require.NoError(t, err)
		assert.Nil(t, d)
	}
	assert.Equal(t, 3, inv.placementCalls)
}

func TestDecideCacheExpires(t *testing.T) {
	inv := &fakeInventory{
		placement: &models.Placement{ID: 5, ZoneKey: "top"},
		creatives: []models.Creative{{ID: 1, CampaignID: 2, Weight: 10}},
	}
	store, mr := newTestRedis(t)
	eng := &Engine{Store: store, Inventory: inv, CacheTTL: time.Minute, FrequencyWindow: 24 * time.Hour}

	_, err := eng.Decide(context.Background(), "top", "user-one")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = eng.Decide(context.Background(), "top", "user-one")
	require.NoError(t, err)
	assert.Equal(t, 2, inv.placementCalls)
}

func TestDecideSurfacesInventoryErrors(t *testing.T) {
	inv := &fakeInventory{err: errors.New("pg down")}
	eng := testEngine(t, inv)

	d, err := eng.Decide(context.Background(), "top", "user-one")
	assert.Error(t, err)
	assert.Nil(t, d)
}

func TestDecideWorksWithoutRedis(t *testing.T) {
	inv := &fakeInventory{
		placement: &models.Placement{ID: 5, ZoneKey: "top"},
		creatives: []models.Creative{{ID: 1, CampaignID: 2, Weight: 10}},
	}
	eng := &Engine{Inventory: inv, CacheTTL: time.Minute, FrequencyWindow: 24 * time.Hour}

	d, err := eng.Decide(context.Background(), "top", "user-one")
	require.NoError(t, err)
	require.NotNil(t, d)
}

func TestRecordServeIncrementsCounters(t *testing.T) {
	store, mr := newTestRedis(t)
	eng := &Engine{Store: store, FrequencyWindow: 24 * time.Hour}

	d := &Decision{
		Placement: models.Placement{ID: 3},
		Creative:  models.Creative{ID: 7, CampaignID: 9, CampaignFrequencyCap: intPtr(2)},
	}
	eng.RecordServe(d, "user-one", 48*time.Hour)
	eng.RecordServe(d, "user-one", 48*time.Hour)

	date := time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, "2", mr.HGet("stats:"+date+":7:3", "impressions"))
	got, err := mr.Get("fcap:9:user-one")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestRecordServeSkipsFrequencyWhenUncapped(t *testing.T) {
	store, mr := newTestRedis(t)
	eng := &Engine{Store: store, FrequencyWindow: 24 * time.Hour}

	d := &Decision{
		Placement: models.Placement{ID: 3},
		Creative:  models.Creative{ID: 7, CampaignID: 9},
	}
	eng.RecordServe(d, "user-one", 48*time.Hour)
	assert.False(t, mr.Exists("fcap:9:user-one"))
}
