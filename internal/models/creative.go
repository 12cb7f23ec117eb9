package models

// Creative types and statuses.
const (
	CreativeImage = "image"
	CreativeHTML  = "html"

	CreativeActive = "active"
	CreativePaused = "paused"
)

// Creative is the renderable ad unit. Image creatives carry an image URL
// plus a click-through URL; html creatives carry raw markup rendered inside
// a sandboxed frame.
type Creative struct {
	ID         int    `json:"id"`
	CampaignID int    `json:"campaign_id"`
	Name       string `json:"name,omitempty"`
	Type       string `json:"type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	ImageURL   string `json:"image_url,omitempty"`
	ClickURL   string `json:"click_url,omitempty"`
	HTML       string `json:"html_content,omitempty"`
	// Weight is the static selection weight configured by the operator.
	// Always >= 1.
	Weight int `json:"weight"`
	// EffectiveWeight is the A/B-derived override in [1,100] computed from
	// recent click-through performance. Nil means "use Weight".
	EffectiveWeight *int `json:"effective_weight,omitempty"`
	Status          string `json:"status"`
	// CampaignFrequencyCap is joined in from the owning campaign when
	// creatives are loaded for a placement, so the frequency filter does
	// not need a second durable-store read.
	CampaignFrequencyCap *int `json:"campaign_frequency_cap,omitempty"`
}

// SelectionWeight returns the weight the selector should use: the A/B
// override when present, otherwise the static weight, floored at 1.
func (c *Creative) SelectionWeight() int {
	w := c.Weight
	if c.EffectiveWeight != nil {
		w = *c.EffectiveWeight
	}
	if w < 1 {
		return 1
	}
	return w
}
