// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logwindow

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/Firewatch/pkg/logging"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
)

// ErrSourceUnavailable reports that the log file could not be opened.
// The cycle for that source aborts with no state mutated; the next tick
// retries from the same watermark.
var ErrSourceUnavailable = errors.New("log source unavailable")

// maxLineBytes bounds a single syslog line. pfSense filter log lines run a
// few hundred bytes; 1 MiB leaves room for pathological payloads.
const maxLineBytes = 1 << 20

// WatermarkStore is the durable cursor the reader consults and advances.
type WatermarkStore interface {
	Watermark(sourceID string) (time.Time, bool, error)
	SetWatermark(sourceID string, t time.Time) error
}

// Window is the slice of log text selected for one cycle.
type Window struct {
	// Text is the concatenated accepted lines, newline-terminated.
	Text string

	// Start is the exclusive lower bound: lines with t > Start are kept.
	Start time.Time

	// End is the reference "now" for the cycle.
	End time.Time

	// Lines is the number of accepted lines.
	Lines int
}

// Empty reports whether no lines were accepted.
func (w Window) Empty() bool {
	return w.Lines == 0
}

// Reader streams a source's log file and extracts the lines newer than the
// source's watermark. On success with at least one accepted line it
// advances the watermark to the newest accepted timestamp; an all-skipped
// or all-stale window leaves the watermark untouched.
type Reader struct {
	store  WatermarkStore
	logger *logging.Logger
}

// NewReader creates a Reader over the given watermark store.
func NewReader(store WatermarkStore, logger *logging.Logger) *Reader {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reader{store: store, logger: logger}
}

// ReadWindow reads the new slice of src's log as of now.
//
// The window start is the persisted watermark, or now minus the source's
// lookback on first run. A line is kept iff its resolved timestamp t
// satisfies Start < t; the year-rollback rule in the resolver already
// guarantees t <= now. Lines that fail timestamp parsing are dropped.
//
// Returns ErrSourceUnavailable (wrapping the underlying open error) when
// the file cannot be opened; no state is mutated on that path.
func (r *Reader) ReadWindow(src source.Source, now time.Time) (Window, error) {
	start, found, err := r.store.Watermark(src.ID)
	if err != nil {
		return Window{}, fmt.Errorf("load watermark for %s: %w", src.ID, err)
	}
	if !found {
		start = now.Add(-src.Lookback)
		r.logger.Info("no watermark, using lookback window",
			"source", src.ID, "window_start", start.Format(time.RFC3339))
	}

	f, err := os.Open(src.LogPath)
	if err != nil {
		return Window{}, fmt.Errorf("%w: open %s: %v", ErrSourceUnavailable, src.LogPath, err)
	}
	defer f.Close()

	resolver := NewResolver(src.Location)

	var (
		b       strings.Builder
		kept    int
		dropped int
		newest  time.Time
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		t, err := resolver.Resolve(line, now)
		if err != nil {
			dropped++
			continue
		}
		if !t.After(start) {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
		kept++
		if t.After(newest) {
			newest = t
		}
	}
	if err := scanner.Err(); err != nil {
		return Window{}, fmt.Errorf("%w: read %s: %v", ErrSourceUnavailable, src.LogPath, err)
	}

	if kept > 0 {
		if err := r.store.SetWatermark(src.ID, newest); err != nil {
			return Window{}, fmt.Errorf("advance watermark for %s: %w", src.ID, err)
		}
	}

	r.logger.Debug("log window read",
		"source", src.ID,
		"kept", kept,
		"unparseable", dropped,
		"window_start", start.Format(time.RFC3339),
		"window_end", now.Format(time.RFC3339),
	)

	return Window{Text: b.String(), Start: start, End: now, Lines: kept}, nil
}
