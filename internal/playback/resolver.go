// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package playback turns catalog range queries into stitchable timelines.
//
// A resolved timeline covers the requested window contiguously with
// segment and gap items, so a player can render missing-recording
// periods instead of silently skipping them. Where two segments overlap
// (possible after an engine restart mid-recording), the segment from the
// more recently published session wins and the older one's shadowed
// portion is reported as a superseded item rather than dropped.
package playback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/nanonvr/internal/models"
)

// Catalog is the read-only segment query surface the resolver needs.
type Catalog interface {
	Query(ctx context.Context, channelID string, from, to time.Time) ([]models.Segment, error)
}

// Resolver answers playback range queries for one catalog.
type Resolver struct {
	catalog Catalog
}

// New creates a Resolver over the given catalog.
func New(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve returns the ordered timeline for [from, to). Segment and gap
// items tile the window exactly; superseded items overlay the winning
// segment's span and are ordered after the item they shadow.
func (r *Resolver) Resolve(ctx context.Context, channelID string, from, to time.Time) ([]models.PlaybackItem, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("playback window end %s not after start %s", to, from)
	}

	segments, err := r.catalog.Query(ctx, channelID, from, to)
	if err != nil {
		return nil, err
	}
	return buildTimeline(segments, from, to), nil
}

// buildTimeline sweeps the elementary intervals formed by segment
// boundaries clipped to [from, to). In each interval the covering
// segment from the newest session wins; any other covering segment is
// shadowed there. Catalog id order is not enough: a redelivered
// segment-closed for an old session draws a higher id than an already
// cataloged newer session's segment. Adjacent intervals with the same
// winner (or same shadowed segment) merge into one item.
func buildTimeline(segments []models.Segment, from, to time.Time) []models.PlaybackItem {
	clipped := make([]models.Segment, 0, len(segments))
	for _, s := range segments {
		if !s.Overlaps(from, to) {
			continue
		}
		clipped = append(clipped, s)
	}
	if len(clipped) == 0 {
		return []models.PlaybackItem{{Kind: models.PlaybackGap, From: from, To: to}}
	}

	bounds := boundaries(clipped, from, to)

	var primary []models.PlaybackItem
	var shadowed []models.PlaybackItem
	for i := 0; i < len(bounds)-1; i++ {
		lo, hi := bounds[i], bounds[i+1]

		var winner *models.Segment
		var losers []*models.Segment
		for j := range clipped {
			s := &clipped[j]
			if !s.Overlaps(lo, hi) {
				continue
			}
			if winner == nil || s.NewerThan(winner) {
				if winner != nil {
					losers = append(losers, winner)
				}
				winner = s
			} else {
				losers = append(losers, s)
			}
		}

		if winner == nil {
			primary = appendItem(primary, models.PlaybackItem{Kind: models.PlaybackGap, From: lo, To: hi})
			continue
		}
		primary = appendItem(primary, models.PlaybackItem{Kind: models.PlaybackSegment, From: lo, To: hi, Segment: winner})
		for _, s := range losers {
			shadowed = appendItem(shadowed, models.PlaybackItem{Kind: models.PlaybackSuperseded, From: lo, To: hi, Segment: s})
		}
	}

	out := append(primary, shadowed...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].From.Equal(out[j].From) {
			return out[i].From.Before(out[j].From)
		}
		return out[i].Kind != models.PlaybackSuperseded && out[j].Kind == models.PlaybackSuperseded
	})
	return out
}

// boundaries returns the sorted, deduplicated sweep points: the window
// edges plus every segment edge falling inside the window.
func boundaries(segments []models.Segment, from, to time.Time) []time.Time {
	points := []time.Time{from, to}
	for _, s := range segments {
		if s.StartTS.After(from) && s.StartTS.Before(to) {
			points = append(points, s.StartTS)
		}
		if s.EndTS.After(from) && s.EndTS.Before(to) {
			points = append(points, s.EndTS)
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })

	dedup := points[:1]
	for _, p := range points[1:] {
		if !p.Equal(dedup[len(dedup)-1]) {
			dedup = append(dedup, p)
		}
	}
	return dedup
}

// appendItem extends the previous item when it continues the same
// segment (or gap) instead of starting a new one.
func appendItem(items []models.PlaybackItem, next models.PlaybackItem) []models.PlaybackItem {
	if n := len(items); n > 0 {
		prev := &items[n-1]
		sameSegment := prev.Segment != nil && next.Segment != nil && prev.Segment.ID == next.Segment.ID
		if prev.Kind == next.Kind && prev.To.Equal(next.From) && (prev.Kind == models.PlaybackGap || sameSegment) {
			prev.To = next.To
			return items
		}
	}
	return append(items, next)
}
