// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package catalog

import (
	"context"
	"os"
	"time"

	"github.com/tomtom215/nanonvr/internal/config"
	"github.com/tomtom215/nanonvr/internal/logging"
	"github.com/tomtom215/nanonvr/internal/metrics"
)

// Sweeper enforces the per-channel retention cap: every interval it
// drops all but the newest KeepSegments segments of each channel,
// optionally removing the recording files too. Runs under the
// supervision tree.
type Sweeper struct {
	catalog *Catalog
	cfg     *config.RetentionConfig
}

// NewSweeper creates a retention sweeper.
func NewSweeper(catalog *Catalog, cfg *config.RetentionConfig) *Sweeper {
	return &Sweeper{catalog: catalog, cfg: cfg}
}

// Serve runs the sweep loop until the context is canceled. One sweep
// runs immediately on start so a long-stopped instance catches up.
func (s *Sweeper) Serve(ctx context.Context) error {
	if !s.cfg.Enabled {
		<-ctx.Done()
		return ctx.Err()
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.catalog.store.SegmentsBeyond(ctx, s.cfg.KeepSegments)
	if err != nil {
		logging.Error().Err(err).Msg("retention sweep query failed")
		return
	}
	if len(expired) == 0 {
		return
	}

	ids := make([]int64, 0, len(expired))
	for _, seg := range expired {
		if s.cfg.DeleteFiles {
			if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
				// Keep the catalog row so the next sweep retries the file.
				logging.Warn().Err(err).Str("path", seg.Path).Msg("failed to remove expired segment file")
				continue
			}
		}
		ids = append(ids, seg.ID)
	}

	if err := s.catalog.store.DeleteSegments(ctx, ids); err != nil {
		logging.Error().Err(err).Msg("retention sweep delete failed")
		return
	}

	metrics.SegmentsDeleted.Add(float64(len(ids)))
	logging.Info().
		Int("deleted", len(ids)).
		Int("keep", s.cfg.KeepSegments).
		Msg("retention sweep complete")
}

// String names the service for the supervision tree.
func (s *Sweeper) String() string { return "retention-sweeper" }
