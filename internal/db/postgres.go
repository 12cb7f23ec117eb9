package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/klimakov/adrotator/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS campaigns (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    start_date TIMESTAMPTZ NULL,
    end_date TIMESTAMPTZ NULL,
    frequency_cap INT NULL,
    webhook_url TEXT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS creatives (
    id SERIAL PRIMARY KEY,
    campaign_id INT NOT NULL REFERENCES campaigns(id),
    name TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'image',
    width INT NOT NULL DEFAULT 0,
    height INT NOT NULL DEFAULT 0,
    image_url TEXT NULL,
    click_url TEXT NULL,
    html_content TEXT NULL,
    weight INT NOT NULL DEFAULT 1,
    effective_weight INT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS placements (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    zone_key TEXT NOT NULL UNIQUE,
    width INT NOT NULL DEFAULT 0,
    height INT NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS placement_creatives (
    placement_id INT NOT NULL REFERENCES placements(id),
    creative_id INT NOT NULL REFERENCES creatives(id),
    PRIMARY KEY (placement_id, creative_id)
);

CREATE TABLE IF NOT EXISTS daily_stats (
    date DATE NOT NULL,
    creative_id INT NOT NULL,
    placement_id INT NOT NULL,
    impressions BIGINT NOT NULL DEFAULT 0,
    clicks BIGINT NOT NULL DEFAULT 0,
    viewable_impressions BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (date, creative_id, placement_id)
);

-- Performance indexes for ad serving
CREATE INDEX IF NOT EXISTS idx_placements_zone_key ON placements (zone_key) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_creatives_campaign_id ON creatives (campaign_id);
CREATE INDEX IF NOT EXISTS idx_placement_creatives_placement ON placement_creatives (placement_id);
CREATE INDEX IF NOT EXISTS idx_daily_stats_date ON daily_stats (date);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// PlacementByZone returns the active placement registered under the given
// zone key, or nil if no active placement exists for it.
func (p *Postgres) PlacementByZone(ctx context.Context, zoneKey string) (*models.Placement, error) {
	var pl models.Placement
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, name, zone_key, width, height, status FROM placements WHERE zone_key = $1 AND status = $2`,
		zoneKey, models.PlacementActive,
	).Scan(&pl.ID, &pl.Name, &pl.ZoneKey, &pl.Width, &pl.Height, &pl.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query placement by zone: %w", err)
	}
	return &pl, nil
}

// PlacementIDByZone resolves a zone key to its placement ID regardless of
// placement status. Returns 0 when the zone is unknown.
func (p *Postgres) PlacementIDByZone(ctx context.Context, zoneKey string) (int, error) {
	var id int
	err := p.DB.QueryRowContext(ctx, `SELECT id FROM placements WHERE zone_key = $1`, zoneKey).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query placement id by zone: %w", err)
	}
	return id, nil
}

// EligibleCreatives returns the creatives attached to a placement whose
// creative and owning campaign are both active and whose campaign flight
// window contains the current time. The campaign predicate matches
// models.Campaign.IsLive with inclusive bounds. Each creative carries its
// campaign's frequency cap. Results come back in creative creation order.
func (p *Postgres) EligibleCreatives(ctx context.Context, placementID int) ([]models.Creative, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT cr.id, cr.campaign_id, cr.name, cr.type, cr.width, cr.height,
		        cr.image_url, cr.click_url, cr.html_content, cr.weight,
		        cr.effective_weight, cr.status, camp.frequency_cap
		 FROM creatives cr
		 JOIN placement_creatives pc ON pc.creative_id = cr.id
		 JOIN campaigns camp ON camp.id = cr.campaign_id
		 WHERE pc.placement_id = $1
		   AND cr.status = 'active'
		   AND camp.status = 'active'
		   AND (camp.start_date IS NULL OR camp.start_date <= NOW())
		   AND (camp.end_date IS NULL OR camp.end_date >= NOW())
		 ORDER BY cr.id`,
		placementID)
	if err != nil {
		return nil, fmt.Errorf("query eligible creatives: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var cs []models.Creative
	for rows.Next() {
		var c models.Creative
		var imageURL, clickURL, html sql.NullString
		var effWeight, freqCap sql.NullInt64
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.Name, &c.Type, &c.Width, &c.Height,
			&imageURL, &clickURL, &html, &c.Weight, &effWeight, &c.Status, &freqCap); err != nil {
			return nil, fmt.Errorf("scan creative: %w", err)
		}
		if imageURL.Valid {
			c.ImageURL = imageURL.String
		}
		if clickURL.Valid {
			c.ClickURL = clickURL.String
		}
		if html.Valid {
			c.HTML = html.String
		}
		if effWeight.Valid {
			w := int(effWeight.Int64)
			c.EffectiveWeight = &w
		}
		if freqCap.Valid {
			fc := int(freqCap.Int64)
			c.CampaignFrequencyCap = &fc
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cs, nil
}

// CreativeOwner returns the owning campaign ID and that campaign's webhook
// URL for a creative. The URL is empty when no webhook is configured.
func (p *Postgres) CreativeOwner(ctx context.Context, creativeID int) (int, string, error) {
	var campaignID int
	var webhookURL sql.NullString
	err := p.DB.QueryRowContext(ctx,
		`SELECT camp.id, camp.webhook_url FROM creatives cr JOIN campaigns camp ON camp.id = cr.campaign_id WHERE cr.id = $1`,
		creativeID,
	).Scan(&campaignID, &webhookURL)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("query creative owner: %w", err)
	}
	return campaignID, webhookURL.String, nil
}

// UpsertDailyStat adds counter deltas into the daily_stats aggregate row,
// creating it when missing.
func (p *Postgres) UpsertDailyStat(ctx context.Context, s models.DailyStat) error {
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO daily_stats (date, creative_id, placement_id, impressions, clicks, viewable_impressions)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (date, creative_id, placement_id)
		 DO UPDATE SET impressions = daily_stats.impressions + $4,
		               clicks = daily_stats.clicks + $5,
		               viewable_impressions = daily_stats.viewable_impressions + $6`,
		s.Date, s.CreativeID, s.PlacementID, s.Impressions, s.Clicks, s.ViewableImpressions)
	if err != nil {
		return fmt.Errorf("upsert daily stat: %w", err)
	}
	return nil
}

// CreativePerformance sums impressions and clicks per creative over
// daily_stats rows no older than lookbackDays, joined with each creative's
// static weight. Creatives with no recent rows are absent from the result.
func (p *Postgres) CreativePerformance(ctx context.Context, lookbackDays int) ([]models.CreativePerformance, error) {
	rows, err := p.DB.QueryContext(ctx,
		`SELECT cr.id, cr.weight, COALESCE(SUM(ds.impressions), 0), COALESCE(SUM(ds.clicks), 0)
		 FROM creatives cr
		 JOIN daily_stats ds ON ds.creative_id = cr.id
		 WHERE ds.date >= CURRENT_DATE - $1::int
		 GROUP BY cr.id, cr.weight`,
		lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("query creative performance: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var perf []models.CreativePerformance
	for rows.Next() {
		var cp models.CreativePerformance
		if err := rows.Scan(&cp.CreativeID, &cp.Weight, &cp.Impressions, &cp.Clicks); err != nil {
			return nil, fmt.Errorf("scan creative performance: %w", err)
		}
		perf = append(perf, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return perf, nil
}

// ApplyEffectiveWeights writes the recomputed A/B weights and clears the
// effective weight of every creative not present in the update set.
func (p *Postgres) ApplyEffectiveWeights(ctx context.Context, weights map[int]int) error {
	keep := make([]int64, 0, len(weights))
	for id, w := range weights {
		if _, err := p.DB.ExecContext(ctx,
			`UPDATE creatives SET effective_weight = $1, updated_at = NOW() WHERE id = $2`, w, id); err != nil {
			return fmt.Errorf("update effective weight for creative %d: %w", id, err)
		}
		keep = append(keep, int64(id))
	}
	_, err := p.DB.ExecContext(ctx,
		`UPDATE creatives SET effective_weight = NULL, updated_at = NOW()
		 WHERE effective_weight IS NOT NULL AND NOT (id = ANY($1))`,
		pq.Array(keep))
	if err != nil {
		return fmt.Errorf("reset effective weights: %w", err)
	}
	return nil
}
