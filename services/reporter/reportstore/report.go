// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reportstore persists one JSON document per completed analysis
// cycle (and per rollup) and lists them by recency.
//
// Layout, per source:
//
//	<reportDir>/<sourceID>/cycle/<YYYY-MM-DD>/<HH-MM-SS>.json
//	<reportDir>/<sourceID>/summary/<YYYY-MM-DD>/<HH-MM-SS>.json
//
// Dates and times use the source's zone. Cycle and rollup ("summary")
// reports live in distinct subtrees so a rollup can never be selected as
// input to another rollup. Two reports generated in the same second for
// the same source collide; with hourly-scale cycle intervals that risk is
// accepted rather than engineered away.
package reportstore

import (
	"time"
)

// Kind partitions reports into per-cycle documents and rollup summaries.
type Kind string

const (
	// KindCycle is the structured output of one ingestion cycle.
	KindCycle Kind = "cycle"

	// KindSummary is a rollup consolidating N prior cycle reports.
	KindSummary Kind = "summary"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCycle || k == KindSummary
}

// Report is one persisted analysis document. Immutable once written.
type Report struct {
	// ID is a generated UUID for audit references.
	ID string `json:"id"`

	// Hostname is the device the report describes.
	Hostname string `json:"hostname"`

	// Kind discriminates cycle reports from rollup summaries.
	Kind Kind `json:"kind"`

	// AnalysisStartTime and AnalysisEndTime bound the analyzed window.
	// For rollups this is the union (min start, max end) of the inputs.
	AnalysisStartTime time.Time `json:"analysis_start_time"`
	AnalysisEndTime   time.Time `json:"analysis_end_time"`

	// ReportGeneratedTime is when the document was produced. It also
	// determines the document's date/time path components.
	ReportGeneratedTime time.Time `json:"report_generated_time"`

	// SummaryStats is a flat string mapping extracted from the analysis
	// response, or all-"N/A" placeholders when extraction failed.
	SummaryStats map[string]string `json:"summary_stats"`

	// AnalysisDetails is the free-text narrative.
	AnalysisDetails string `json:"analysis_details"`

	// SourceReports lists, for rollups only, the ordered identities
	// (store-relative paths) of the cycle reports that were merged.
	SourceReports []string `json:"source_reports,omitempty"`
}
