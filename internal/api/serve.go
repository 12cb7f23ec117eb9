package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/logic"
	"github.com/klimakov/adrotator/internal/middleware"
	"github.com/klimakov/adrotator/internal/models"
)

// AdResponse is the JSON payload returned to the serving SDK.
type AdResponse struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageURL    string `json:"image_url"`
	ClickURL    string `json:"click_url"`
	HTMLContent string `json:"html_content"`
	Zone        string `json:"zone"`
	PlacementID int    `json:"placement_id"`
}

// escapeHTMLAttr escapes a string for use inside a double-quoted HTML attribute.
func escapeHTMLAttr(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		`"`, "&quot;",
		"'", "&#39;",
		"<", "&lt;",
		">", "&gt;",
	)
	return r.Replace(s)
}

// escapeSrcdoc escapes only & and " so the markup cannot break out of the
// srcdoc attribute. The HTML itself renders as-is inside the sandboxed iframe.
func escapeSrcdoc(html string) string {
	return strings.NewReplacer("&", "&amp;", `"`, "&quot;").Replace(html)
}

// ServeHandler handles GET /serve/{zoneKey}: the JSON decision endpoint.
func (s *Server) ServeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ServeHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/serve/{zoneKey}"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "serve"
	const method = "GET"

	zone := mux.Vars(r)["zoneKey"]
	info := logic.ResolveRequestInfo(r, s.GeoIP)
	uid := logic.ResolveUID(r.URL.Query().Get("uid"), info.IP, info.UserAgent)
	span.SetAttributes(attribute.String("zone", zone))

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "no-store")

	decision, err := s.Engine.Decide(ctx, zone, uid)
	if err != nil {
		// Durable store failures degrade to an empty slot, not a 5xx.
		logger.Error("decision failed", zap.Error(err), zap.String("zone", zone))
		span.SetAttributes(attribute.String("ad.result", "error"))
		s.Metrics.IncrementDecisions("error")
		s.Metrics.IncrementRequests(endpoint, method, "204")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if decision == nil {
		span.SetAttributes(attribute.String("ad.result", "no_fill"))
		s.Metrics.IncrementDecisions("no_fill")
		s.Metrics.IncrementRequests(endpoint, method, "204")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	span.SetAttributes(
		attribute.String("ad.result", "served"),
		attribute.Int("ad.creative_id", decision.Creative.ID),
		attribute.Int("ad.campaign_id", decision.Creative.CampaignID),
	)
	s.Metrics.IncrementDecisions("served")

	go s.Engine.RecordServe(decision, uid, s.Config.CounterTTL)
	go s.recordEvent("serve", decision.Creative.ID, decision.Creative.CampaignID, decision.Placement.ID, zone, info)

	resp := AdResponse{
		ID:          decision.Creative.ID,
		Type:        decision.Creative.Type,
		Width:       decision.Creative.Width,
		Height:      decision.Creative.Height,
		ImageURL:    decision.Creative.ImageURL,
		ClickURL:    decision.Creative.ClickURL,
		HTMLContent: decision.Creative.HTML,
		Zone:        zone,
		PlacementID: decision.Placement.ID,
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("encode response", zap.Error(err))
	}
}

// ServeHTMLHandler handles GET /serve/{zoneKey}/html: a self-contained HTML
// document for direct iframe embedding.
func (s *Server) ServeHTMLHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "ServeHTMLHandler",
		trace.WithAttributes(
			attribute.String("http.method", "GET"),
			attribute.String("http.route", "/serve/{zoneKey}/html"),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "serve_html"
	const method = "GET"

	zone := mux.Vars(r)["zoneKey"]
	info := logic.ResolveRequestInfo(r, s.GeoIP)
	uid := logic.ResolveUID(r.URL.Query().Get("uid"), info.IP, info.UserAgent)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	decision, err := s.Engine.Decide(ctx, zone, uid)
	if err != nil || decision == nil {
		if err != nil {
			logger.Error("decision failed", zap.Error(err), zap.String("zone", zone))
			s.Metrics.IncrementDecisions("error")
		} else {
			s.Metrics.IncrementDecisions("no_fill")
		}
		s.Metrics.IncrementRequests(endpoint, method, "200")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		fmt.Fprint(w, "<html><body></body></html>")
		return
	}

	s.Metrics.IncrementDecisions("served")
	go s.Engine.RecordServe(decision, uid, s.Config.CounterTTL)
	go s.recordEvent("serve", decision.Creative.ID, decision.Creative.CampaignID, decision.Placement.ID, zone, info)

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))

	fmt.Fprint(w, renderAdDocument(zone, decision))
}

// renderAdDocument builds the HTML document for a decision. HTML creatives
// run inside a sandboxed iframe; image creatives become a tracked link.
func renderAdDocument(zone string, d *logic.Decision) string {
	cr := d.Creative
	var body string
	if cr.Type == models.CreativeHTML && cr.HTML != "" {
		body = fmt.Sprintf(
			`<iframe sandbox="allow-scripts allow-popups" srcdoc="%s" width="%d" height="%d" style="border:0;display:block;" title="Advertisement"></iframe>`,
			escapeSrcdoc(cr.HTML), d.Placement.Width, d.Placement.Height)
	} else {
		clickOpen, clickClose := "<span>", "</span>"
		if cr.ClickURL != "" {
			clickOpen = fmt.Sprintf(`<a href="/track/click/%d?zone=%s&redirect=%s" target="_blank">`,
				cr.ID, url.QueryEscape(zone), url.QueryEscape(cr.ClickURL))
			clickClose = "</a>"
		}
		body = fmt.Sprintf(`%s<img src="%s" width="%d" height="%d" style="display:block;border:0;" />%s`,
			clickOpen, escapeHTMLAttr(cr.ImageURL), cr.Width, cr.Height, clickClose)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><style>body{margin:0;padding:0;overflow:hidden;}</style></head>
<body>%s
<script>new Image().src="/track/impression/%d?p=%d&t="+Date.now();</script>
</body></html>`, body, cr.ID, d.Placement.ID)
}
