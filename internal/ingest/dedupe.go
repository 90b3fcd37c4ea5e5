// NanoNVR - Stream Session Orchestration for ZLMediaKit
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nanonvr

package ingest

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/nanonvr/internal/logging"
)

// DedupeIndex is the durable idempotency index over event keys.
//
// JetStream's duplicate window already drops redeliveries inside a short
// horizon; this index covers the long tail, including engine restarts
// that replay webhooks hours later and our own process restarts. Keys
// expire after the configured TTL.
type DedupeIndex struct {
	db  *badger.DB
	ttl time.Duration
}

// NewDedupeIndex opens (or creates) the index at path.
func NewDedupeIndex(path string, ttl time.Duration) (*DedupeIndex, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open dedupe index %s: %w", path, err)
	}
	return &DedupeIndex{db: db, ttl: ttl}, nil
}

// Seen reports whether key was marked inside the TTL. Marking happens
// separately, after the event's effects are applied, so a failed apply
// stays retryable.
func (d *DedupeIndex) Seen(key string) (bool, error) {
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("dedupe index lookup: %w", err)
}

// Mark records key with the index TTL.
func (d *DedupeIndex) Mark(key string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), nil).WithTTL(d.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("dedupe index mark: %w", err)
	}
	return nil
}

// Close flushes and closes the index.
func (d *DedupeIndex) Close() error {
	if err := d.db.Close(); err != nil {
		logging.Warn().Err(err).Msg("dedupe index close failed")
		return err
	}
	return nil
}
