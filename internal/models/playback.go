// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package models

import "time"

// PlaybackItemKind distinguishes the entries of a resolved playback range.
type PlaybackItemKind string

const (
	// PlaybackSegment references a recorded segment clipped to the request.
	PlaybackSegment PlaybackItemKind = "segment"

	// PlaybackGap is an interval with no recorded coverage. Gaps are
	// reported explicitly so playback UIs never silently skip time.
	PlaybackGap PlaybackItemKind = "gap"

	// PlaybackSuperseded is the portion of an older session's segment that
	// overlaps a newer session's coverage (possible after an engine
	// restart). Reported as superseded, not as a gap.
	PlaybackSuperseded PlaybackItemKind = "superseded"
)

// PlaybackItem is one entry of the ordered sequence returned by the
// playback resolver. From/To are clipped to the requested range.
type PlaybackItem struct {
	Kind PlaybackItemKind `json:"kind"`
	From time.Time        `json:"from"`
	To   time.Time        `json:"to"`

	// Segment is set for segment and superseded items.
	Segment *Segment `json:"segment,omitempty"`
}
