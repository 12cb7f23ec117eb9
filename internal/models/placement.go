package models

// Placement statuses.
const (
	PlacementActive = "active"
	PlacementPaused = "paused"
)

// Placement is an ad slot on a publisher page. The ZoneKey is the public
// identifier embedded in page markup; creatives are attached through the
// placement_creatives join table.
type Placement struct {
	ID      int    `json:"id"`
	Name    string `json:"name,omitempty"`
	ZoneKey string `json:"zone_key"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Status  string `json:"status"`
}

// ZoneEntry is the unit cached per zone key: the resolved placement plus
// its eligible creatives at resolution time. An entry with an empty
// creative list is never cached so fresh inventory shows up immediately.
type ZoneEntry struct {
	Placement Placement  `json:"placement"`
	Creatives []Creative `json:"creatives"`
}
