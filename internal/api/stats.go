package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/middleware"
)

// FlushHandler handles POST /stats/flush: an on-demand drain of today's
// counters into daily_stats, on top of the periodic job.
func (s *Server) FlushHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "FlushHandler",
		trace.WithAttributes(attribute.String("http.route", "/stats/flush")))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)

	start := time.Now()
	const endpoint = "stats_flush"
	const method = "POST"

	flushed, err := s.Flusher.Run(ctx)
	if err != nil {
		logger.Error("stats flush", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "flush failed", http.StatusInternalServerError)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Flushed int    `json:"flushed"`
		Date    string `json:"date"`
	}{flushed, time.Now().UTC().Format("2006-01-02")}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("encode response", zap.Error(err))
	}
}
