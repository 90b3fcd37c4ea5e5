// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package catalog owns the durable index of closed recording segments.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/nanonvr/internal/logging"
	"github.com/tomtom215/nanonvr/internal/metrics"
	"github.com/tomtom215/nanonvr/internal/models"
)

// Store is the persistence surface the catalog needs. Implemented by
// the database package.
type Store interface {
	InsertSegment(ctx context.Context, seg models.Segment) (models.Segment, bool, error)
	QuerySegments(ctx context.Context, channelID string, from, to time.Time) ([]models.Segment, error)
	FlaggedSegments(ctx context.Context, channelID string) ([]models.Segment, error)
	SegmentsBeyond(ctx context.Context, keep int) ([]models.Segment, error)
	DeleteSegments(ctx context.Context, ids []int64) error
	DeleteChannelSegments(ctx context.Context, channelID string) ([]models.Segment, error)
	Summaries(ctx context.Context) ([]models.RecordingSummary, error)
}

// Catalog records closed segments and answers time-range queries.
type Catalog struct {
	store Store
}

// New creates a Catalog over the given store.
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// Insert catalogs one closed segment. Duplicate submissions of a segment
// already stored return the existing row without error.
func (c *Catalog) Insert(ctx context.Context, seg models.Segment) (models.Segment, error) {
	if seg.ChannelID == "" || seg.Path == "" {
		return models.Segment{}, fmt.Errorf("segment missing channel or path")
	}
	if !seg.EndTS.After(seg.StartTS) {
		return models.Segment{}, fmt.Errorf("segment end %s not after start %s", seg.EndTS, seg.StartTS)
	}

	stored, inserted, err := c.store.InsertSegment(ctx, seg)
	if err != nil {
		return models.Segment{}, err
	}
	if !inserted {
		logging.Debug().
			Str("channel", seg.ChannelID).
			Time("start", seg.StartTS).
			Msg("segment already cataloged")
		return stored, nil
	}

	metrics.SegmentsInserted.Inc()
	if stored.OverlapFlagged {
		metrics.SegmentsOverlapFlagged.Inc()
		logging.Warn().
			Str("channel", stored.ChannelID).
			Str("path", stored.Path).
			Time("start", stored.StartTS).
			Time("end", stored.EndTS).
			Msg("segment overlaps existing catalog entries")
	}
	return stored, nil
}

// Query returns a channel's segments intersecting [from, to).
func (c *Catalog) Query(ctx context.Context, channelID string, from, to time.Time) ([]models.Segment, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("query window end %s not after start %s", to, from)
	}
	return c.store.QuerySegments(ctx, channelID, from, to)
}

// Flagged returns overlap-flagged segments for operator review.
func (c *Catalog) Flagged(ctx context.Context, channelID string) ([]models.Segment, error) {
	return c.store.FlaggedSegments(ctx, channelID)
}

// Summaries aggregates per-channel recording totals.
func (c *Catalog) Summaries(ctx context.Context) ([]models.RecordingSummary, error) {
	return c.store.Summaries(ctx)
}

// DropChannel removes every catalog entry for a deleted channel and
// returns the dropped rows so callers can remove recording files.
func (c *Catalog) DropChannel(ctx context.Context, channelID string) ([]models.Segment, error) {
	segs, err := c.store.DeleteChannelSegments(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if len(segs) > 0 {
		metrics.SegmentsDeleted.Add(float64(len(segs)))
	}
	return segs, nil
}
