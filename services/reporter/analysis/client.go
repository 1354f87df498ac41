// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis submits log windows (and rollup inputs) to an LLM
// backend and extracts the structured summary embedded in its free-text
// response.
package analysis

import (
	"context"
	"time"
)

// Per-call deadlines. Rollup input concatenates several reports, so it
// gets more headroom.
const (
	CycleTimeout  = 120 * time.Second
	RollupTimeout = 180 * time.Second
)

// Request is one analysis call.
type Request struct {
	// Body is the raw log window text (cycle) or the concatenated prior
	// report narratives (rollup).
	Body string

	// BonusContext holds operator-supplied documents merged verbatim
	// into the prompt.
	BonusContext []string

	// Template selects the cycle or rollup prompt variant.
	Template Template
}

// Analyzer is the LLM backend. Implementations must honor the context
// deadline; the orchestrator converts any error into a soft-failed report
// rather than aborting the cycle.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (string, error)
}
