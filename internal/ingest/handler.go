// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package ingest moves engine lifecycle events from the webhook to the
// registry and catalog through an embedded JetStream pipeline.
//
// Error absorption rules: a malformed payload is logged and acknowledged
// (the engine will not resend it more meaningfully); stale, mismatched,
// and invalid transitions are logged and acknowledged (expected under
// redelivery); only infrastructure failures return an error so the
// router's retry middleware redelivers.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/nanonvr/internal/logging"
	"github.com/tomtom215/nanonvr/internal/metrics"
	"github.com/tomtom215/nanonvr/internal/models"
	"github.com/tomtom215/nanonvr/internal/registry"
)

// ChannelRegistry is the registry surface the ingestor mutates.
type ChannelRegistry interface {
	Get(id string) (models.Channel, error)
	ApplyTransition(id string, t registry.Transition) (models.Channel, error)
	SessionStart(id, session string) (time.Time, bool)
}

// SegmentCatalog is the catalog surface the ingestor writes to.
type SegmentCatalog interface {
	Insert(ctx context.Context, seg models.Segment) (models.Segment, error)
}

// Ingestor applies decoded lifecycle events.
type Ingestor struct {
	registry ChannelRegistry
	catalog  SegmentCatalog
	dedupe   *DedupeIndex
}

// NewIngestor wires the ingestor to its downstream owners.
func NewIngestor(reg ChannelRegistry, cat SegmentCatalog, dedupe *DedupeIndex) *Ingestor {
	return &Ingestor{registry: reg, catalog: cat, dedupe: dedupe}
}

// Handle processes one raw event payload. A nil return acknowledges the
// message; an error triggers redelivery.
func (i *Ingestor) Handle(ctx context.Context, payload []byte) error {
	ev, err := UnmarshalEvent(payload)
	if err != nil {
		metrics.EventsMalformed.Inc()
		logging.Warn().Err(err).Int("bytes", len(payload)).Msg("malformed lifecycle event dropped")
		return nil
	}

	key := ev.IdempotencyKey()
	seen, err := i.dedupe.Seen(key)
	if err != nil {
		return err
	}
	if seen {
		metrics.EventsDuplicate.Inc()
		logging.Debug().Str("key", key).Msg("duplicate lifecycle event skipped")
		return nil
	}

	if err := i.apply(ctx, ev); err != nil {
		return err
	}

	metrics.EventsIngested.WithLabelValues(string(ev.Kind)).Inc()
	if err := i.dedupe.Mark(key); err != nil {
		// The effects are already applied and guarded by the registry's
		// seq checks and the catalog's duplicate probe, so a failed mark
		// only costs one redundant pass on redelivery.
		logging.Warn().Err(err).Str("key", key).Msg("failed to mark event as seen")
	}
	return nil
}

func (i *Ingestor) apply(ctx context.Context, ev *models.LifecycleEvent) error {
	switch ev.Kind {
	case models.EventPublished:
		return i.transition(ev, registry.Transition{
			To:         models.StateLive,
			Session:    ev.Session,
			Seq:        ev.Seq,
			NewSession: true,
			At:         ev.Timestamp,
			Reason:     "publish",
		})

	case models.EventUnpublished:
		if ch, err := i.registry.Get(ev.ChannelID); err == nil && ch.State == models.StateRecording {
			logging.Warn().
				Str("channel", ev.ChannelID).
				Str("session", ev.Session).
				Msg("stream unpublished while recording")
		}
		return i.transition(ev, registry.Transition{
			To:      models.StateIdle,
			Session: ev.Session,
			Seq:     ev.Seq,
			Reason:  "unpublish",
		})

	case models.EventRecordStarted:
		return i.transition(ev, registry.Transition{
			To:      models.StateRecording,
			Session: ev.Session,
			Seq:     ev.Seq,
			Reason:  "record started",
		})

	case models.EventRecordStopped:
		return i.transition(ev, registry.Transition{
			To:      models.StateLive,
			Session: ev.Session,
			Seq:     ev.Seq,
			Reason:  "record stopped",
		})

	case models.EventSegmentClosed:
		// The owning session's publish time orders segments across
		// sessions. A session the registry no longer remembers (restart)
		// is approximated by its segment's own start.
		sessionStart, ok := i.registry.SessionStart(ev.ChannelID, ev.Session)
		if !ok {
			sessionStart = ev.Segment.StartTS
		}
		_, err := i.catalog.Insert(ctx, models.Segment{
			ChannelID:    ev.ChannelID,
			Session:      ev.Session,
			StartTS:      ev.Segment.StartTS,
			EndTS:        ev.Segment.EndTS,
			Path:         ev.Segment.Path,
			SizeBytes:    ev.Segment.SizeBytes,
			SessionStart: sessionStart,
		})
		return err

	default:
		metrics.EventsMalformed.Inc()
		logging.Warn().Str("kind", string(ev.Kind)).Msg("unknown event kind dropped")
		return nil
	}
}

// transition applies a guarded registry transition, absorbing the
// ordering rejections that redelivery produces.
func (i *Ingestor) transition(ev *models.LifecycleEvent, t registry.Transition) error {
	_, err := i.registry.ApplyTransition(ev.ChannelID, t)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, registry.ErrStaleTransition),
		errors.Is(err, registry.ErrSessionMismatch),
		errors.Is(err, registry.ErrInvalidTransition):
		logging.Debug().
			Err(err).
			Str("channel", ev.ChannelID).
			Str("kind", string(ev.Kind)).
			Uint64("seq", ev.Seq).
			Msg("transition rejected")
		return nil
	case errors.Is(err, registry.ErrNotFound):
		logging.Warn().
			Str("channel", ev.ChannelID).
			Str("kind", string(ev.Kind)).
			Msg("event for unconfigured channel dropped")
		return nil
	default:
		return err
	}
}
