package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/klimakov/adrotator/internal/analytics"
	"github.com/klimakov/adrotator/internal/config"
	"github.com/klimakov/adrotator/internal/db"
	"github.com/klimakov/adrotator/internal/logic"
	"github.com/klimakov/adrotator/internal/models"
	"github.com/klimakov/adrotator/internal/observability"
)

type stubInventory struct {
	placement *models.Placement
	creatives []models.Creative
}

func (s *stubInventory) PlacementByZone(ctx context.Context, zoneKey string) (*models.Placement, error) {
	if s.placement != nil && s.placement.ZoneKey == zoneKey {
		return s.placement, nil
	}
	return nil, nil
}

func (s *stubInventory) EligibleCreatives(ctx context.Context, placementID int) ([]models.Creative, error) {
	return s.creatives, nil
}

func newTestServer(t *testing.T, inv logic.Inventory) (*Server, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	store := &db.RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Ctx:    context.Background(),
	}
	t.Cleanup(func() { _ = store.Client.Close() })

	cfg := config.Config{
		CacheTTL:        time.Minute,
		FrequencyWindow: 24 * time.Hour,
		CounterTTL:      48 * time.Hour,
	}
	s := &Server{
		Logger: zaptest.NewLogger(t),
		Store:  store,
		Engine: &logic.Engine{
			Store:           store,
			Inventory:       inv,
			CacheTTL:        cfg.CacheTTL,
			FrequencyWindow: cfg.FrequencyWindow,
		},
		Analytics: analytics.NewMockAnalytics(),
		Metrics:   &observability.MockMetricsRegistry{},
		Config:    cfg,
	}
	return s, mr
}

func recordedEvents(s *Server) []analytics.Event {
	return s.Analytics.(*analytics.MockAnalytics).Recorded()
}

func testRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/serve/{zoneKey}", s.ServeHandler).Methods(http.MethodGet)
	r.HandleFunc("/serve/{zoneKey}/html", s.ServeHTMLHandler).Methods(http.MethodGet)
	r.HandleFunc("/track/impression/{creativeId}", s.ImpressionHandler).Methods(http.MethodGet)
	r.HandleFunc("/track/viewable/{creativeId}", s.ViewableHandler).Methods(http.MethodGet)
	r.HandleFunc("/track/click/{creativeId}", s.ClickHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	return r
}

func sidebarInventory() *stubInventory {
	return &stubInventory{
		placement: &models.Placement{ID: 4, Name: "Sidebar", ZoneKey: "sidebar", Width: 300, Height: 250, Status: models.PlacementActive},
		creatives: []models.Creative{{
			ID:         7,
			CampaignID: 2,
			Name:       "Promo",
			Type:       models.CreativeImage,
			Width:      300,
			Height:     250,
			ImageURL:   "https://cdn.example.com/promo.png",
			ClickURL:   "https://example.com/landing",
			Weight:     10,
		}},
	}
}

func TestServeHandlerReturnsAd(t *testing.T) {
	s, _ := newTestServer(t, sidebarInventory())

	req := httptest.NewRequest(http.MethodGet, "/serve/sidebar?uid=visitor_12345", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var resp AdResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.ID)
	assert.Equal(t, "image", resp.Type)
	assert.Equal(t, "https://cdn.example.com/promo.png", resp.ImageURL)
	assert.Equal(t, "sidebar", resp.Zone)
	assert.Equal(t, 4, resp.PlacementID)
}

func TestServeHandlerRecordsRawEvent(t *testing.T) {
	s, _ := newTestServer(t, sidebarInventory())

	req := httptest.NewRequest(http.MethodGet, "/serve/sidebar?uid=visitor_12345", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	req.Header.Set("Referer", "https://pub.example.org/article")
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return len(recordedEvents(s)) == 1
	}, time.Second, 10*time.Millisecond)

	ev := recordedEvents(s)[0]
	assert.Equal(t, "serve", ev.EventType)
	assert.Equal(t, 7, ev.CreativeID)
	assert.Equal(t, 2, ev.CampaignID)
	assert.Equal(t, 4, ev.PlacementID)
	assert.Equal(t, "sidebar", ev.Zone)
	assert.Equal(t, "desktop", ev.DeviceType)
	assert.Equal(t, "https://pub.example.org/article", ev.Referer)
}

func TestServeHandlerUnknownZone(t *testing.T) {
	s, _ := newTestServer(t, &stubInventory{})

	req := httptest.NewRequest(http.MethodGet, "/serve/nope", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Body.Bytes())
}

func TestServeHandlerFrequencyCapExhausted(t *testing.T) {
	inv := sidebarInventory()
	inv.creatives[0].CampaignFrequencyCap = intPtr(3)
	s, mr := newTestServer(t, inv)

	// The user already saw this campaign 3 times inside the window.
	uid := "visitor_12345"
	mr.Set("fcap:2:"+uid, strconv.Itoa(3))

	req := httptest.NewRequest(http.MethodGet, "/serve/sidebar?uid="+uid, nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// A different user is unaffected.
	req = httptest.NewRequest(http.MethodGet, "/serve/sidebar?uid=other_visitor_1", nil)
	rec = httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeHTMLHandlerImageCreative(t *testing.T) {
	s, _ := newTestServer(t, sidebarInventory())

	req := httptest.NewRequest(http.MethodGet, "/serve/sidebar/html", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<img src="https://cdn.example.com/promo.png"`)
	assert.Contains(t, body, "/track/click/7?zone=sidebar&redirect=")
	assert.Contains(t, body, "/track/impression/7?p=4")
}

func TestServeHTMLHandlerSandboxesHTMLCreative(t *testing.T) {
	inv := sidebarInventory()
	inv.creatives[0].Type = models.CreativeHTML
	inv.creatives[0].HTML = `<div class="ad">Buy & "win"</div>`
	s, _ := newTestServer(t, inv)

	req := httptest.NewRequest(http.MethodGet, "/serve/sidebar/html", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, `sandbox="allow-scripts allow-popups"`)
	// & and " must be escaped so the markup cannot escape the srcdoc attribute.
	assert.Contains(t, body, `srcdoc="<div class=&quot;ad&quot;>Buy &amp; &quot;win&quot;</div>"`)
}

func TestServeHTMLHandlerEmptyWhenNoInventory(t *testing.T) {
	s, _ := newTestServer(t, &stubInventory{})

	req := httptest.NewRequest(http.MethodGet, "/serve/nope/html", nil)
	rec := httptest.NewRecorder()
	testRouter(s).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html><body></body></html>", rec.Body.String())
}

func TestEscapeSrcdoc(t *testing.T) {
	assert.Equal(t, "&amp;lt;b&amp;gt;", escapeSrcdoc("&lt;b&gt;"))
	assert.Equal(t, "a&quot;b", escapeSrcdoc(`a"b`))
	// Angle brackets pass through: the iframe renders them.
	assert.Equal(t, "<script>", escapeSrcdoc("<script>"))
}

func intPtr(n int) *int { return &n }
