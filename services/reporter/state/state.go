// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package state persists per-source cursor state: the watermark (the instant
// through which a source's log has been consumed) and the rollup counter
// (completed cycles since the last rollup).
//
// Both live in an embedded BadgerDB keyed by source ID. A missing or
// unreadable value is reported as absent/zero rather than an error: the
// window reader falls back to its lookback window and the counter restarts
// from zero, which only costs duplicate analysis, never lost log lines.
package state

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/Firewatch/services/reporter/storage/badger"
)

const (
	watermarkPrefix  = "watermark/"
	cycleCountPrefix = "cyclecount/"
)

// Store provides durable watermark and rollup-counter access.
// Safe for concurrent use, although Firewatch processes sources
// strictly sequentially and never has two writers for one source.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) the state database in dir.
func Open(dir string) (*Store, error) {
	cfg := badger.DefaultConfig()
	cfg.Path = dir
	db, err := badger.OpenDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral state store for tests.
func OpenInMemory() (*Store, error) {
	db, err := badger.OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("open in-memory state store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Watermark returns the persisted watermark for a source. The second
// return value is false when no watermark exists or the stored value
// cannot be parsed; corrupt state is deliberately treated as absent.
func (s *Store) Watermark(sourceID string) (time.Time, bool, error) {
	raw, found, err := s.get(watermarkPrefix + sourceID)
	if err != nil {
		return time.Time{}, false, err
	}
	if !found {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, nil
	}
	return t, true, nil
}

// SetWatermark persists the watermark for a source.
func (s *Store) SetWatermark(sourceID string, t time.Time) error {
	return s.set(watermarkPrefix+sourceID, []byte(t.Format(time.RFC3339Nano)))
}

// CycleCount returns the number of completed cycles since the last rollup.
// Missing or corrupt values read as zero.
func (s *Store) CycleCount(sourceID string) (int, error) {
	raw, found, err := s.get(cycleCountPrefix + sourceID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// IncrementCycleCount adds one to the counter and returns the new value.
func (s *Store) IncrementCycleCount(sourceID string) (int, error) {
	n, err := s.CycleCount(sourceID)
	if err != nil {
		return 0, err
	}
	n++
	if err := s.set(cycleCountPrefix+sourceID, []byte(strconv.Itoa(n))); err != nil {
		return 0, err
	}
	return n, nil
}

// ResetCycleCount sets the counter back to zero.
func (s *Store) ResetCycleCount(sourceID string) error {
	return s.set(cycleCountPrefix+sourceID, []byte("0"))
}

func (s *Store) get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read state key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) set(key string, value []byte) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("write state key %s: %w", key, err)
	}
	return nil
}
