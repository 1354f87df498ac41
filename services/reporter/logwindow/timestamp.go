// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logwindow reads the slice of a source's syslog file that is new
// since the last successful cycle.
//
// Syslog timestamps omit the year ("Oct 17 08:50:00"), so the resolver
// assumes the reference year and rolls back one year when that produces an
// instant in the future. That keeps a line written on Dec 31 readable by a
// process running on Jan 1.
package logwindow

import (
	"errors"
	"fmt"
	"time"
)

// ErrBadTimestamp reports a line whose prefix does not parse as a syslog
// timestamp. Callers skip the line; this never aborts a cycle.
var ErrBadTimestamp = errors.New("malformed log timestamp")

// prefixLen is the fixed width of the syslog timestamp prefix,
// e.g. "Oct 17 08:50:00" or "Oct  7 08:50:00".
const prefixLen = 15

// syslogLayout parses the year-less prefix; _2 accepts both space-padded
// and unpadded days.
const syslogLayout = "2006 Jan _2 15:04:05"

// Resolver converts year-less syslog timestamp prefixes into absolute
// instants in a fixed time zone.
type Resolver struct {
	loc *time.Location
}

// NewResolver creates a Resolver for the given zone.
func NewResolver(loc *time.Location) *Resolver {
	return &Resolver{loc: loc}
}

// Resolve parses the timestamp prefix of a log line against a reference
// "now". The reference year is assumed first; a result after now is rolled
// back one year. Returns ErrBadTimestamp when the line is too short or the
// prefix does not match the syslog layout.
func (r *Resolver) Resolve(line string, now time.Time) (time.Time, error) {
	if len(line) < prefixLen {
		return time.Time{}, fmt.Errorf("%w: line shorter than %d bytes", ErrBadTimestamp, prefixLen)
	}
	prefix := line[:prefixLen]

	t, err := time.ParseInLocation(syslogLayout, fmt.Sprintf("%d %s", now.Year(), prefix), r.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, prefix)
	}

	// December line read in January: the assumed year is one too high.
	if t.After(now) {
		t = time.Date(t.Year()-1, t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), r.loc)
	}
	return t, nil
}
