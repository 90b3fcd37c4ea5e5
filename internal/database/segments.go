// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/nanonvr/internal/models"
)

// InsertSegment catalogs one closed segment. The whole operation runs in
// a transaction that performs three steps in order:
//
//  1. duplicate probe on (channel, session, start_ts): a repeat of an
//     already-cataloged segment is a no-op and returns the stored row;
//  2. overlap probe against existing rows for the channel: any time
//     intersection marks the new row overlap_flagged rather than
//     rejecting it, since the recording exists on disk either way;
//  3. the insert itself, which draws the monotonic id.
//
// Returns the stored segment and whether a new row was created.
func (db *DB) InsertSegment(ctx context.Context, seg models.Segment) (models.Segment, bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Segment{}, false, fmt.Errorf("begin segment insert: %w", err)
	}
	defer rollbackQuietly(tx)

	var existing models.Segment
	err = tx.QueryRowContext(ctx, `
		SELECT id, channel_id, session, session_start_ts, start_ts, end_ts, path, size_bytes, overlap_flagged, created_at
		FROM segments WHERE channel_id = ? AND session = ? AND start_ts = ?`,
		seg.ChannelID, seg.Session, seg.StartTS).Scan(
		&existing.ID, &existing.ChannelID, &existing.Session, &existing.SessionStart,
		&existing.StartTS, &existing.EndTS, &existing.Path, &existing.SizeBytes,
		&existing.OverlapFlagged, &existing.CreatedAt)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return models.Segment{}, false, fmt.Errorf("segment duplicate probe: %w", err)
	}

	var overlaps int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*) FROM segments
		WHERE channel_id = ? AND start_ts < ? AND end_ts > ?`,
		seg.ChannelID, seg.EndTS, seg.StartTS).Scan(&overlaps)
	if err != nil {
		return models.Segment{}, false, fmt.Errorf("segment overlap probe: %w", err)
	}
	seg.OverlapFlagged = overlaps > 0
	seg.CreatedAt = time.Now().UTC()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO segments (channel_id, session, session_start_ts, start_ts, end_ts, path, size_bytes, overlap_flagged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		seg.ChannelID, seg.Session, seg.SessionStart, seg.StartTS, seg.EndTS,
		seg.Path, seg.SizeBytes, seg.OverlapFlagged, seg.CreatedAt).Scan(&seg.ID)
	if err != nil {
		return models.Segment{}, false, fmt.Errorf("insert segment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Segment{}, false, fmt.Errorf("commit segment insert: %w", err)
	}
	return seg, true, nil
}

// QuerySegments returns a channel's segments intersecting [from, to),
// ordered by start time then id.
func (db *DB) QuerySegments(ctx context.Context, channelID string, from, to time.Time) ([]models.Segment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, channel_id, session, session_start_ts, start_ts, end_ts, path, size_bytes, overlap_flagged, created_at
		FROM segments
		WHERE channel_id = ? AND start_ts < ? AND end_ts > ?
		ORDER BY start_ts, id`,
		channelID, to, from)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer closeQuietly(rows)
	return scanSegments(rows)
}

// FlaggedSegments returns all segments marked overlap_flagged, newest
// first. An empty channelID matches every channel.
func (db *DB) FlaggedSegments(ctx context.Context, channelID string) ([]models.Segment, error) {
	query := `
		SELECT id, channel_id, session, session_start_ts, start_ts, end_ts, path, size_bytes, overlap_flagged, created_at
		FROM segments WHERE overlap_flagged`
	args := []interface{}{}
	if channelID != "" {
		query += ` AND channel_id = ?`
		args = append(args, channelID)
	}
	query += ` ORDER BY start_ts DESC, id DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flagged segments: %w", err)
	}
	defer closeQuietly(rows)
	return scanSegments(rows)
}

// SegmentsBeyond returns, per channel, every segment older than the
// newest keep segments. Used by the retention sweeper.
func (db *DB) SegmentsBeyond(ctx context.Context, keep int) ([]models.Segment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, channel_id, session, session_start_ts, start_ts, end_ts, path, size_bytes, overlap_flagged, created_at
		FROM (
			SELECT *, row_number() OVER (PARTITION BY channel_id ORDER BY start_ts DESC, id DESC) AS rn
			FROM segments
		) WHERE rn > ?
		ORDER BY channel_id, start_ts`, keep)
	if err != nil {
		return nil, fmt.Errorf("query expired segments: %w", err)
	}
	defer closeQuietly(rows)
	return scanSegments(rows)
}

// DeleteSegments removes catalog rows by id.
func (db *DB) DeleteSegments(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin segment delete: %w", err)
	}
	defer rollbackQuietly(tx)

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM segments WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare segment delete: %w", err)
	}
	defer closeQuietly(stmt)

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete segment %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// DeleteChannelSegments removes every catalog row for one channel and
// returns the deleted rows so the caller can remove files.
func (db *DB) DeleteChannelSegments(ctx context.Context, channelID string) ([]models.Segment, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, channel_id, session, session_start_ts, start_ts, end_ts, path, size_bytes, overlap_flagged, created_at
		FROM segments WHERE channel_id = ? ORDER BY start_ts, id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query segments for channel %s: %w", channelID, err)
	}
	segs, err := scanSegments(rows)
	closeQuietly(rows)
	if err != nil {
		return nil, err
	}
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM segments WHERE channel_id = ?`, channelID); err != nil {
		return nil, fmt.Errorf("delete segments for channel %s: %w", channelID, err)
	}
	return segs, nil
}

// Summaries aggregates per-channel recording totals.
func (db *DB) Summaries(ctx context.Context) ([]models.RecordingSummary, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT channel_id, count(*), sum(size_bytes), min(start_ts), max(end_ts)
		FROM segments GROUP BY channel_id ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.RecordingSummary
	for rows.Next() {
		var s models.RecordingSummary
		if err := rows.Scan(&s.ChannelID, &s.Segments, &s.TotalBytes, &s.OldestTS, &s.NewestTS); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSegments(rows *sql.Rows) ([]models.Segment, error) {
	var out []models.Segment
	for rows.Next() {
		var s models.Segment
		if err := rows.Scan(&s.ID, &s.ChannelID, &s.Session, &s.SessionStart, &s.StartTS,
			&s.EndTS, &s.Path, &s.SizeBytes, &s.OverlapFlagged, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan segment row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// rollbackQuietly is safe to defer after Commit: a rollback of a done
// transaction returns sql.ErrTxDone, which is not worth logging.
func rollbackQuietly(tx *sql.Tx) {
	_ = tx.Rollback()
}
