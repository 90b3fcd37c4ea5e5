// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package database

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates the tables and indexes.
//
// Segment ids come from a sequence and order insertions, not sessions;
// session_start_ts carries the owning session's publish time so playback
// can pick the newer session where segments overlap.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			app TEXT NOT NULL DEFAULT '',
			stream TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT true,
			policy TEXT NOT NULL DEFAULT 'off',
			schedule TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`,

		`CREATE SEQUENCE IF NOT EXISTS segments_id_seq`,

		`CREATE TABLE IF NOT EXISTS segments (
			id BIGINT PRIMARY KEY DEFAULT nextval('segments_id_seq'),
			channel_id TEXT NOT NULL,
			session TEXT NOT NULL,
			session_start_ts TIMESTAMP NOT NULL,
			start_ts TIMESTAMP NOT NULL,
			end_ts TIMESTAMP NOT NULL,
			path TEXT NOT NULL,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			overlap_flagged BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP NOT NULL DEFAULT current_timestamp
		)`,

		`CREATE INDEX IF NOT EXISTS idx_segments_channel_start
			ON segments (channel_id, start_ts)`,

		`CREATE INDEX IF NOT EXISTS idx_segments_flagged
			ON segments (overlap_flagged)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
