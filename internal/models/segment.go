// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package models

import "time"

// Segment is the catalog metadata of one closed recording file.
// Segments are immutable once visible; only retention deletes them.
type Segment struct {
	// ID is the catalog insertion id, monotonically increasing. Insertion
	// order is not session order: a redelivered segment-closed for an old
	// session can be cataloged after a newer session's segments.
	ID int64 `json:"id"`

	ChannelID string    `json:"channel_id"`
	Session   string    `json:"session"`
	StartTS   time.Time `json:"start_ts"`
	EndTS     time.Time `json:"end_ts"` // exclusive
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`

	// SessionStart is when the owning session was published, stamped at
	// ingest from the registry's session history. Playback uses it to pick
	// the newer session where segments overlap.
	SessionStart time.Time `json:"session_start_ts"`

	// OverlapFlagged marks a segment stored despite overlapping an existing
	// committed segment. Flagged for manual review, never silently dropped.
	OverlapFlagged bool `json:"overlap_flagged,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Duration returns the covered time span.
func (s *Segment) Duration() time.Duration {
	return s.EndTS.Sub(s.StartTS)
}

// Overlaps reports whether s covers any instant in [from, to).
func (s *Segment) Overlaps(from, to time.Time) bool {
	return s.StartTS.Before(to) && s.EndTS.After(from)
}

// NewerThan reports whether s belongs to a more recent session than
// other. Within the same session (or when both session starts are
// unknown) the higher catalog id is newer.
func (s *Segment) NewerThan(other *Segment) bool {
	if !s.SessionStart.Equal(other.SessionStart) {
		return s.SessionStart.After(other.SessionStart)
	}
	return s.ID > other.ID
}

// RecordingSummary aggregates catalog contents for one channel, mirroring
// the per-stream recording overview of the operator UI.
type RecordingSummary struct {
	ChannelID  string    `json:"channel_id"`
	Segments   int64     `json:"segments"`
	TotalBytes int64     `json:"total_bytes"`
	OldestTS   time.Time `json:"oldest_ts"`
	NewestTS   time.Time `json:"newest_ts"`
}
