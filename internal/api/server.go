package api

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/analytics"
	"github.com/klimakov/adrotator/internal/config"
	"github.com/klimakov/adrotator/internal/db"
	"github.com/klimakov/adrotator/internal/geoip"
	"github.com/klimakov/adrotator/internal/jobs"
	"github.com/klimakov/adrotator/internal/logic"
	"github.com/klimakov/adrotator/internal/observability"
	"github.com/klimakov/adrotator/internal/webhook"
)

var tracer = otel.Tracer("adrotator")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Store     *db.RedisStore
	PG        *db.Postgres
	Engine    *logic.Engine
	Analytics analytics.AnalyticsService
	GeoIP     *geoip.Resolver
	Webhooks  *webhook.Dispatcher
	Flusher   *jobs.Flusher
	Metrics   observability.MetricsRegistry
	Config    config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, store *db.RedisStore, pg *db.Postgres, analyticsSvc analytics.AnalyticsService, geo *geoip.Resolver, dispatcher *webhook.Dispatcher, flusher *jobs.Flusher, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger: logger,
		Store:  store,
		PG:     pg,
		Engine: &logic.Engine{
			Store:           store,
			Inventory:       pg,
			CacheTTL:        cfg.CacheTTL,
			FrequencyWindow: cfg.FrequencyWindow,
		},
		Analytics: analyticsSvc,
		GeoIP:     geo,
		Webhooks:  dispatcher,
		Flusher:   flusher,
		Metrics:   metrics,
		Config:    cfg,
	}
}

// recordEvent writes a raw analytics event from a detached goroutine.
// Missing analytics backends and insert failures are dropped.
func (s *Server) recordEvent(eventType string, creativeID, campaignID, placementID int, zone string, info logic.RequestInfo) {
	if s.Analytics == nil {
		return
	}
	ev := analytics.Event{
		EventType:   eventType,
		CreativeID:  creativeID,
		CampaignID:  campaignID,
		PlacementID: placementID,
		Zone:        zone,
		IP:          info.IP,
		UserAgent:   info.UserAgent,
		Referer:     info.Referer,
		DeviceType:  info.DeviceType,
		Country:     info.Country,
	}
	if err := s.Analytics.RecordEvent(context.Background(), ev); err != nil {
		s.Logger.Error("analytics record", zap.Error(err), zap.String("event_type", eventType))
	}
}
