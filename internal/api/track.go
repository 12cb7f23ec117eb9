package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/logic"
	"github.com/klimakov/adrotator/internal/middleware"
	"github.com/klimakov/adrotator/internal/urlcheck"
	"github.com/klimakov/adrotator/internal/webhook"
)

// pixelGIF is a transparent 1x1 GIF served by the tracking endpoints.
var pixelGIF, _ = base64.StdEncoding.DecodeString(
	"R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

func writePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	_, _ = w.Write(pixelGIF)
}

// counterError logs a failed side-effect increment and bumps the error metric.
func (s *Server) counterError(what string, creativeID int, err error) {
	s.Logger.Error(what, zap.Error(err), zap.Int("creative_id", creativeID))
	s.Metrics.IncrementCounterErrors()
}

// ImpressionHandler handles GET /track/impression/{creativeId}?p={placementId}.
// It always answers with a 1x1 pixel; counting happens off the request path.
func (s *Server) ImpressionHandler(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "ImpressionHandler",
		trace.WithAttributes(attribute.String("http.route", "/track/impression/{creativeId}")))
	defer span.End()

	start := time.Now()
	const endpoint = "track_impression"
	const method = "GET"

	creativeID, err := strconv.Atoi(mux.Vars(r)["creativeId"])
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid creative id", http.StatusBadRequest)
		return
	}
	placementID, _ := strconv.Atoi(r.URL.Query().Get("p"))
	info := logic.ResolveRequestInfo(r, s.GeoIP)

	s.Metrics.IncrementEvent("impression")
	go s.recordEvent("impression", creativeID, 0, placementID, "", info)
	if placementID > 0 && s.Store != nil {
		go func() {
			if err := s.Store.IncrementImpression(creativeID, placementID, s.Config.CounterTTL); err != nil {
				s.counterError("impression counter", creativeID, err)
			}
		}()
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writePixel(w)
}

// ViewableHandler handles GET /track/viewable/{creativeId}?p={placementId}.
// Viewability beacons fire when a creative meets the MRC standard (50% in
// viewport for one second); they only bump the viewable counter.
func (s *Server) ViewableHandler(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "ViewableHandler",
		trace.WithAttributes(attribute.String("http.route", "/track/viewable/{creativeId}")))
	defer span.End()

	start := time.Now()
	const endpoint = "track_viewable"
	const method = "GET"

	creativeID, err := strconv.Atoi(mux.Vars(r)["creativeId"])
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid creative id", http.StatusBadRequest)
		return
	}
	placementID, _ := strconv.Atoi(r.URL.Query().Get("p"))

	s.Metrics.IncrementEvent("viewable")
	if placementID > 0 && s.Store != nil {
		go func() {
			if err := s.Store.IncrementViewable(creativeID, placementID, s.Config.CounterTTL); err != nil {
				s.counterError("viewable counter", creativeID, err)
			}
		}()
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	writePixel(w)
}

// ClickHandler handles GET /track/click/{creativeId}?zone=&redirect=.
// The redirect target is validated before the browser is sent anywhere;
// counting and webhook dispatch never delay the response.
func (s *Server) ClickHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ClickHandler",
		trace.WithAttributes(attribute.String("http.route", "/track/click/{creativeId}")))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "track_click"
	const method = "GET"

	creativeID, err := strconv.Atoi(mux.Vars(r)["creativeId"])
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid creative id", http.StatusBadRequest)
		return
	}
	zone := r.URL.Query().Get("zone")
	redirect := r.URL.Query().Get("redirect")
	if redirect != "" && !urlcheck.IsRedirectURLAllowed(redirect) {
		logger.Warn("unsafe redirect rejected", zap.Int("creative_id", creativeID))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid redirect", http.StatusBadRequest)
		return
	}
	info := logic.ResolveRequestInfo(r, s.GeoIP)

	var placementID int
	if zone != "" && s.PG != nil {
		placementID, err = s.PG.PlacementIDByZone(ctx, zone)
		if err != nil {
			logger.Error("placement lookup", zap.Error(err), zap.String("zone", zone))
			placementID = 0
		}
	}

	s.Metrics.IncrementEvent("click")
	go s.recordEvent("click", creativeID, 0, placementID, zone, info)
	if placementID > 0 && s.Store != nil {
		go func() {
			if err := s.Store.IncrementClick(creativeID, placementID, s.Config.CounterTTL); err != nil {
				s.counterError("click counter", creativeID, err)
			}
		}()
	}
	go s.dispatchClickWebhook(creativeID, placementID, info)

	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))

	if redirect != "" {
		s.Metrics.IncrementRequests(endpoint, method, "302")
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "204")
	w.WriteHeader(http.StatusNoContent)
}

// dispatchClickWebhook resolves the owning campaign and fires its webhook
// when one is configured. Runs detached from the click response.
func (s *Server) dispatchClickWebhook(creativeID, placementID int, info logic.RequestInfo) {
	if s.Webhooks == nil || s.PG == nil {
		return
	}
	campaignID, webhookURL, err := s.PG.CreativeOwner(context.Background(), creativeID)
	if err != nil {
		s.Logger.Error("creative owner lookup", zap.Error(err), zap.Int("creative_id", creativeID))
		return
	}
	if campaignID == 0 || webhookURL == "" {
		return
	}
	s.Webhooks.DispatchClick(context.Background(), webhookURL, webhook.ClickEvent{
		CampaignID:  campaignID,
		CreativeID:  creativeID,
		PlacementID: placementID,
		IP:          info.IP,
		UserAgent:   info.UserAgent,
		Referer:     info.Referer,
	})
}
