package models

import "time"

// Campaign statuses. Only active campaigns are eligible for delivery;
// paused and archived campaigns keep their creatives but serve nothing.
const (
	CampaignActive   = "active"
	CampaignPaused   = "paused"
	CampaignArchived = "archived"
)

// Campaign groups creatives under one advertiser contract. Delivery limits
// (flight dates, per-user frequency cap) and the click webhook live here;
// selection weights live on the individual creatives.
type Campaign struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	// FrequencyCap is the maximum number of impressions one user may
	// receive from this campaign within the rolling 24h window. Nil or
	// non-positive means uncapped.
	FrequencyCap *int `json:"frequency_cap,omitempty"`
	// WebhookURL, when set, receives a POST for every tracked click.
	WebhookURL string `json:"webhook_url,omitempty"`
}

// IsLive reports whether the campaign is active and now falls inside its
// flight window. Unset bounds are open.
func (c *Campaign) IsLive(now time.Time) bool {
	if c.Status != CampaignActive {
		return false
	}
	if c.StartDate != nil && now.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return false
	}
	return true
}
