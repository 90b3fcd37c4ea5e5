// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

// Package policy converges each channel's actual recording state to the
// state its configured policy demands.
//
// The engine reacts to registry updates, a periodic tick, and motion
// signals. Commands toward the media engine are edge-triggered: one
// command per desired-state change, retried with bounded exponential
// backoff on transport failure, never re-polled while an attempt is in
// flight. Every command carries the channel's intent generation; a
// response that lands after a newer intent replaced it is discarded.
package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/nanonvr/internal/config"
	"github.com/tomtom215/nanonvr/internal/engine"
	"github.com/tomtom215/nanonvr/internal/logging"
	"github.com/tomtom215/nanonvr/internal/metrics"
	"github.com/tomtom215/nanonvr/internal/models"
)

// Facade is the engine control surface the policy engine commands.
type Facade interface {
	AddStreamProxy(ctx context.Context, app, stream, sourceURL string) (string, error)
	StartRecord(ctx context.Context, app, stream string, maxSecond int) error
	StopRecord(ctx context.Context, app, stream string) error
}

// Registry is the channel state surface the policy engine reads and,
// on permanent command failure, marks errored.
type Registry interface {
	Get(id string) (models.Channel, error)
	List() []models.Channel
	Watch(buffer int) (<-chan models.ChannelUpdate, func())
	SetOperational(id string, to models.ChannelState, reason string) (models.Channel, error)
}

// commandGrace is how long an issued command is trusted to produce a
// state change before the tick loop may issue it again.
const commandGrace = 30 * time.Second

// channelIntent is the per-channel transient decision state.
type channelIntent struct {
	generation  uint64
	inFlight    bool
	lastCommand string // "start", "stop", "proxy"
	lastIssued  time.Time
	motionUntil time.Time
}

// Engine is the recording policy evaluator. Runs under the supervision
// tree.
type Engine struct {
	registry Registry
	facade   Facade
	cfg      *config.RecordingConfig

	mu      sync.Mutex
	intents map[string]*channelIntent

	motionCh chan string
}

// New creates a policy engine.
func New(reg Registry, facade Facade, cfg *config.RecordingConfig) *Engine {
	return &Engine{
		registry: reg,
		facade:   facade,
		cfg:      cfg,
		intents:  make(map[string]*channelIntent),
		motionCh: make(chan string, 64),
	}
}

// Motion registers an external motion signal for a channel. The signal
// holds recording intent for the configured hold window; repeated
// signals extend it.
func (e *Engine) Motion(channelID string) {
	e.mu.Lock()
	st := e.intent(channelID)
	st.motionUntil = time.Now().Add(e.cfg.MotionHold)
	e.mu.Unlock()

	select {
	case e.motionCh <- channelID:
	default:
	}
}

// Serve evaluates intents until the context is canceled.
func (e *Engine) Serve(ctx context.Context) error {
	updates, cancel := e.registry.Watch(64)
	defer cancel()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.evaluateAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return errors.New("registry update stream closed")
			}
			e.evaluate(ctx, u.Channel.Config.ID)
		case id := <-e.motionCh:
			e.evaluate(ctx, id)
		case <-ticker.C:
			e.evaluateAll(ctx)
		}
	}
}

// String names the service for the supervision tree.
func (e *Engine) String() string { return "policy-engine" }

func (e *Engine) evaluateAll(ctx context.Context) {
	for _, ch := range e.registry.List() {
		e.evaluate(ctx, ch.Config.ID)
	}
}

// evaluate recomputes one channel's intent and issues at most one
// command for it.
func (e *Engine) evaluate(ctx context.Context, id string) {
	ch, err := e.registry.Get(id)
	if err != nil {
		e.mu.Lock()
		delete(e.intents, id)
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.intent(id)

	if st.inFlight {
		return
	}

	want := e.wantRecording(&ch, st, time.Now())

	switch {
	case ch.State == models.StateIdle || ch.State == models.StateOffline || ch.State == models.StateError:
		// Source pull: enabled channels with a source URL are pulled
		// into the engine so they can go live at all. Errored channels
		// get re-pulled too, paced by the command grace window.
		if ch.Config.Enabled && ch.Config.SourceURL != "" && e.mayIssue(st, "proxy") {
			e.issue(ctx, st, &ch, "proxy")
		}
	case want && ch.State == models.StateLive:
		if e.mayIssue(st, "start") {
			e.issue(ctx, st, &ch, "start")
		}
	case !want && ch.State == models.StateRecording:
		if e.mayIssue(st, "stop") {
			e.issue(ctx, st, &ch, "stop")
		}
	}
}

// wantRecording derives the channel's recording intent.
func (e *Engine) wantRecording(ch *models.Channel, st *channelIntent, now time.Time) bool {
	if !ch.Config.Enabled {
		return false
	}
	switch ch.Config.Policy {
	case models.PolicyContinuous:
		return true
	case models.PolicyScheduled:
		windows, err := parseWindows(ch.Config.Schedule)
		if err != nil {
			logging.Warn().Err(err).Str("channel", ch.Config.ID).Msg("unparseable schedule, not recording")
			return false
		}
		return inSchedule(windows, now)
	case models.PolicyMotion:
		return now.Before(st.motionUntil)
	default:
		return false
	}
}

// mayIssue rate-limits identical re-issues: a repeated command is only
// allowed once the previous one's grace window has passed.
func (e *Engine) mayIssue(st *channelIntent, command string) bool {
	if st.lastCommand == command && time.Since(st.lastIssued) < commandGrace {
		return false
	}
	return true
}

// issue dispatches one command attempt loop. Caller holds e.mu.
func (e *Engine) issue(ctx context.Context, st *channelIntent, ch *models.Channel, command string) {
	st.generation++
	st.inFlight = true
	st.lastCommand = command
	st.lastIssued = time.Now()
	gen := st.generation

	id := ch.Config.ID
	app, stream, source := ch.EngineApp(), ch.EngineStream(), ch.Config.SourceURL

	go e.runCommand(ctx, id, gen, command, app, stream, source)
}

// runCommand executes one command with bounded exponential backoff.
// Unavailable engine responses retry; an explicit rejection or retry
// exhaustion marks the channel errored. A result arriving after the
// intent generation moved on is a no-op.
func (e *Engine) runCommand(ctx context.Context, id string, gen uint64, command, app, stream, source string) {
	interval := e.cfg.RetryInitialInterval
	var lastErr error

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.CommandRetries.Inc()
			select {
			case <-ctx.Done():
				e.finish(id, gen)
				return
			case <-time.After(interval):
			}
			interval *= 2
			if interval > e.cfg.RetryMaxInterval {
				interval = e.cfg.RetryMaxInterval
			}
			if e.superseded(id, gen) {
				logging.Debug().Str("channel", id).Str("command", command).Msg("command superseded, abandoning retries")
				return
			}
		}

		var err error
		switch command {
		case "proxy":
			_, err = e.facade.AddStreamProxy(ctx, app, stream, source)
		case "start":
			err = e.facade.StartRecord(ctx, app, stream, e.cfg.SegmentSeconds)
		case "stop":
			err = e.facade.StopRecord(ctx, app, stream)
		}

		switch {
		case err == nil:
			e.onCommandOK(id, gen, command)
			return
		case errors.Is(err, engine.ErrEngineRejected):
			e.onCommandFailed(id, gen, command, err)
			return
		default:
			lastErr = err
			logging.Warn().
				Err(err).
				Str("channel", id).
				Str("command", command).
				Int("attempt", attempt+1).
				Msg("engine command failed, will retry")
		}
	}

	e.onCommandFailed(id, gen, command, lastErr)
}

// finish clears the in-flight marker if gen is still current.
func (e *Engine) finish(id string, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.intents[id]
	if !ok || st.generation != gen {
		return false
	}
	st.inFlight = false
	return true
}

func (e *Engine) superseded(id string, gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.intents[id]
	return !ok || st.generation != gen
}

func (e *Engine) onCommandOK(id string, gen uint64, command string) {
	if !e.finish(id, gen) {
		logging.Debug().Str("channel", id).Str("command", command).Msg("late command response ignored")
		return
	}
	if command == "proxy" {
		if _, err := e.registry.SetOperational(id, models.StateConnecting, ""); err != nil {
			logging.Debug().Err(err).Str("channel", id).Msg("connecting transition skipped")
		}
	}
	// Start/stop state changes arrive through the engine's own
	// record-started/record-stopped events, not here.
}

func (e *Engine) onCommandFailed(id string, gen uint64, command string, cause error) {
	if !e.finish(id, gen) {
		logging.Debug().Str("channel", id).Str("command", command).Msg("late command failure ignored")
		return
	}
	reason := command + " failed"
	if cause != nil {
		reason = command + " failed: " + cause.Error()
	}
	if _, err := e.registry.SetOperational(id, models.StateError, reason); err != nil {
		logging.Error().Err(err).Str("channel", id).Msg("failed to mark channel errored")
	}
}

// intent returns the per-channel state, creating it if needed. Caller
// holds e.mu.
func (e *Engine) intent(id string) *channelIntent {
	st, ok := e.intents[id]
	if !ok {
		st = &channelIntent{}
		e.intents[id] = st
	}
	return st
}
