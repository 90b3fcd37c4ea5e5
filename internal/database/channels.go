// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomtom215/nanonvr/internal/models"
)

// UpsertChannel inserts or replaces a channel configuration.
func (db *DB) UpsertChannel(ctx context.Context, cfg models.ChannelConfig) error {
	query := `
		INSERT INTO channels (id, label, app, stream, source_url, enabled, policy, schedule, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, current_timestamp)
		ON CONFLICT (id) DO UPDATE SET
			label = excluded.label,
			app = excluded.app,
			stream = excluded.stream,
			source_url = excluded.source_url,
			enabled = excluded.enabled,
			policy = excluded.policy,
			schedule = excluded.schedule,
			updated_at = current_timestamp`

	_, err := db.conn.ExecContext(ctx, query,
		cfg.ID, cfg.Label, cfg.App, cfg.Stream, cfg.SourceURL,
		cfg.Enabled, string(cfg.Policy), strings.Join(cfg.Schedule, ","))
	if err != nil {
		return fmt.Errorf("upsert channel %s: %w", cfg.ID, err)
	}
	return nil
}

// DeleteChannel removes a channel configuration. Cataloged segments for
// the channel are removed separately by the catalog.
func (db *DB) DeleteChannel(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete channel %s: %w", id, err)
	}
	return nil
}

// ListChannelConfigs returns every configured channel ordered by id.
func (db *DB) ListChannelConfigs(ctx context.Context) ([]models.ChannelConfig, error) {
	query := `
		SELECT id, label, app, stream, source_url, enabled, policy, schedule
		FROM channels ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer closeQuietly(rows)

	var configs []models.ChannelConfig
	for rows.Next() {
		var cfg models.ChannelConfig
		var policy, schedule string
		if err := rows.Scan(&cfg.ID, &cfg.Label, &cfg.App, &cfg.Stream,
			&cfg.SourceURL, &cfg.Enabled, &policy, &schedule); err != nil {
			return nil, fmt.Errorf("scan channel row: %w", err)
		}
		cfg.Policy = models.RecordPolicy(policy)
		if schedule != "" {
			cfg.Schedule = strings.Split(schedule, ",")
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}
