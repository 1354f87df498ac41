// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package source defines the per-firewall source descriptor shared by the
// reporter components. A Source is rebuilt from configuration on every
// scheduler tick; only its persisted state (watermark, rollup counter,
// reports) outlives the process.
package source

import "time"

// Source describes one configured log-producing device.
type Source struct {
	// ID uniquely identifies the source and namespaces all persisted
	// state. Validated path-safe at config load time.
	ID string

	// Hostname is the device name shown in reports and mail subjects.
	// Defaults to ID when unset.
	Hostname string

	// LogPath is the syslog file to read.
	LogPath string

	// Lookback bounds the first analysis window when no watermark exists.
	Lookback time.Duration

	// Location is the time zone the device writes log timestamps in.
	Location *time.Location

	// Recipients receive per-cycle reports.
	Recipients []string

	// RollupEvery triggers a consolidated report after this many
	// completed cycles. Zero disables rollups.
	RollupEvery int

	// RollupRecipients receive rollup reports. Falls back to Recipients
	// when empty.
	RollupRecipients []string

	// BonusContext holds operator-supplied file paths whose contents are
	// appended verbatim to analysis requests.
	BonusContext []string

	// ResetCounterOnEmptyRollup keeps the original behavior of resetting
	// the rollup counter even when no eligible reports exist. When false,
	// the counter is left at threshold so the rollup retries next cycle.
	ResetCounterOnEmptyRollup bool
}

// Name returns the display name for reports: Hostname if set, else ID.
func (s Source) Name() string {
	if s.Hostname != "" {
		return s.Hostname
	}
	return s.ID
}

// RollupTargets returns the recipient list for rollup reports.
func (s Source) RollupTargets() []string {
	if len(s.RollupRecipients) > 0 {
		return s.RollupRecipients
	}
	return s.Recipients
}
