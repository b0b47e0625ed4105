package repository

import (
	"context"
	"fmt"
	"strings"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS links (
		id            TEXT PRIMARY KEY,
		owner_id      TEXT NOT NULL,
		original_url  TEXT NOT NULL,
		alias         TEXT NOT NULL UNIQUE,
		short_url     TEXT NOT NULL,
		click_count   BIGINT NOT NULL DEFAULT 0,
		campaign_id   TEXT,
		utm_source    TEXT,
		utm_medium    TEXT,
		utm_campaign  TEXT,
		utm_term      TEXT,
		utm_content   TEXT,
		qr_design_ref TEXT,
		created_at    {{timestamp}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_links_short_url ON links (short_url)`,
	`CREATE INDEX IF NOT EXISTS idx_links_owner_id ON links (owner_id)`,
	`CREATE TABLE IF NOT EXISTS usage_counters (
		owner_id               TEXT PRIMARY KEY,
		links_used             BIGINT NOT NULL DEFAULT 0,
		qr_codes_used          BIGINT NOT NULL DEFAULT 0,
		custom_backhalves_used BIGINT NOT NULL DEFAULT 0,
		period_start           {{timestamp}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_events (
		id               TEXT PRIMARY KEY,
		link_id          TEXT NOT NULL,
		owner_id         TEXT NOT NULL,
		occurred_at      {{timestamp}} NOT NULL,
		device_class     TEXT NOT NULL,
		referrer_domain  TEXT NOT NULL,
		location_country TEXT NOT NULL,
		location_city    TEXT NOT NULL,
		is_qr_scan       BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_events_link_id ON analytics_events (link_id, occurred_at)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_events_owner_id ON analytics_events (owner_id)`,
}

func (r *Repository) Migrate(ctx context.Context) error {
	timestamp := "TIMESTAMPTZ"
	if r.dialect == SQLite {
		timestamp = "DATETIME"
	}

	for i, stmt := range schema {
		stmt = strings.ReplaceAll(stmt, "{{timestamp}}", timestamp)
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
