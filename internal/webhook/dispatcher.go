// Package webhook delivers click notifications to campaign-configured
// endpoints. Dispatch is fire-and-forget: the click response never waits on
// a webhook and failures are logged, not retried.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/observability"
	"github.com/klimakov/adrotator/internal/urlcheck"
)

// ClickEvent is the JSON payload POSTed to a campaign webhook.
type ClickEvent struct {
	Event       string    `json:"event"`
	CampaignID  int       `json:"campaign_id"`
	CreativeID  int       `json:"creative_id"`
	PlacementID int       `json:"placement_id"`
	ClickID     string    `json:"click_id"`
	IP          string    `json:"ip"`
	UserAgent   string    `json:"user_agent"`
	Referer     string    `json:"referer"`
	Timestamp   time.Time `json:"timestamp"`
}

// Dispatcher POSTs click events to campaign webhook URLs that pass safety
// validation.
type Dispatcher struct {
	Client   *http.Client
	Metrics  observability.MetricsRegistry
	validate func(string) bool
}

// NewDispatcher builds a dispatcher with a traced HTTP client and the given
// per-request timeout. A nil metrics registry disables webhook metrics.
func NewDispatcher(timeout time.Duration, metrics observability.MetricsRegistry) *Dispatcher {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Dispatcher{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Metrics:  metrics,
		validate: urlcheck.IsWebhookURLSafe,
	}
}

// DispatchClick sends a click event to url. Unsafe URLs are skipped, not
// errors seen by end users; callers run this from a detached goroutine.
func (d *Dispatcher) DispatchClick(ctx context.Context, url string, ev ClickEvent) {
	if url == "" {
		return
	}
	if !d.validate(url) {
		zap.L().Warn("webhook url rejected", zap.Int("campaign_id", ev.CampaignID))
		d.Metrics.IncrementWebhooks("rejected")
		return
	}

	ev.Event = "click"
	if ev.ClickID == "" {
		ev.ClickID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		zap.L().Error("webhook payload encode", zap.Error(err))
		d.Metrics.IncrementWebhooks("error")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		zap.L().Error("webhook request build", zap.Error(err))
		d.Metrics.IncrementWebhooks("error")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		zap.L().Error("webhook post", zap.Error(err), zap.Int("campaign_id", ev.CampaignID))
		d.Metrics.IncrementWebhooks("error")
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		zap.L().Warn("webhook non-2xx response",
			zap.Int("status", resp.StatusCode), zap.Int("campaign_id", ev.CampaignID))
		d.Metrics.IncrementWebhooks(fmt.Sprintf("status_%d", resp.StatusCode))
		return
	}
	d.Metrics.IncrementWebhooks("ok")
}
