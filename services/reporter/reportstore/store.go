// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reportstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/AleutianAI/Firewatch/pkg/logging"
)

// ErrInvalidKind reports an unknown report kind.
var ErrInvalidKind = errors.New("invalid report kind")

const (
	dateLayout = "2006-01-02"
	timeLayout = "15-04-05"
)

// Stored pairs a decoded report with its identity within the store.
type Stored struct {
	Report

	// Path is the document's path relative to the store root,
	// e.g. "fw-edge/cycle/2026-08-29/12-00-00.json".
	Path string
}

// Store reads and writes report documents under a root directory.
type Store struct {
	root   string
	logger *logging.Logger
}

// New creates a Store rooted at dir.
func New(dir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{root: dir, logger: logger}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Save writes one report for sourceID. The document lands under the
// source/kind/date partition derived from ReportGeneratedTime in loc.
// Returns the store-relative path of the written document.
func (s *Store) Save(sourceID string, rep Report, loc *time.Location) (string, error) {
	if !rep.Kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, rep.Kind)
	}
	if loc == nil {
		loc = time.UTC
	}

	generated := rep.ReportGeneratedTime.In(loc)
	rel := filepath.Join(
		sourceID,
		string(rep.Kind),
		generated.Format(dateLayout),
		generated.Format(timeLayout)+".json",
	)
	full := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(full, data, 0640); err != nil {
		return "", fmt.Errorf("write report %s: %w", rel, err)
	}

	s.logger.Info("report saved", "source", sourceID, "kind", rep.Kind, "path", rel)
	return rel, nil
}

// ListRecent returns up to limit reports of the given kind for sourceID,
// most recent first. Recency is the date/time encoded in the document
// path, not file modification time, so touching a file never reorders
// rollup input selection. Only the requested kind's subtree is walked;
// summaries are invisible when listing cycles and vice versa.
func (s *Store) ListRecent(sourceID string, kind Kind, limit int) ([]Stored, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	kindDir := filepath.Join(s.root, sourceID, string(kind))
	dateDirs, err := os.ReadDir(kindDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list reports for %s: %w", sourceID, err)
	}

	var rels []string
	for _, d := range dateDirs {
		if !d.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(kindDir, d.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
				continue
			}
			rels = append(rels, filepath.Join(sourceID, string(kind), d.Name(), f.Name()))
		}
	}

	// Path components are zero-padded date/time, so lexicographic order
	// is chronological order.
	sort.Sort(sort.Reverse(sort.StringSlice(rels)))
	if limit > 0 && len(rels) > limit {
		rels = rels[:limit]
	}

	out := make([]Stored, 0, len(rels))
	for _, rel := range rels {
		rep, err := s.Load(rel)
		if err != nil {
			s.logger.Warn("skipping unreadable report", "path", rel, "error", err)
			continue
		}
		out = append(out, Stored{Report: rep, Path: rel})
	}
	return out, nil
}

// Load reads one report by its store-relative path.
func (s *Store) Load(rel string) (Report, error) {
	data, err := os.ReadFile(filepath.Join(s.root, rel))
	if err != nil {
		return Report{}, fmt.Errorf("read report %s: %w", rel, err)
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return Report{}, fmt.Errorf("decode report %s: %w", rel, err)
	}
	return rep, nil
}
