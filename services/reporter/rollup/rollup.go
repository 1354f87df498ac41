// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rollup consolidates the most recent N cycle reports for a source
// into one period report.
//
// Rollups read only the cycle subtree of the report store, so a rollup can
// never summarize another rollup, and they operate on immutable persisted
// documents, so re-running one is harmless.
package rollup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/Firewatch/pkg/logging"
	"github.com/AleutianAI/Firewatch/services/reporter/analysis"
	"github.com/AleutianAI/Firewatch/services/reporter/reportstore"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
)

// ErrNoInputs reports that no cycle reports exist to summarize. Non-fatal:
// the orchestrator logs it and applies the source's counter-reset policy.
var ErrNoInputs = errors.New("no cycle reports available for rollup")

// Builder produces rollup reports.
type Builder struct {
	store    *reportstore.Store
	analyzer analysis.Analyzer
	logger   *logging.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(store *reportstore.Store, analyzer analysis.Analyzer, logger *logging.Logger) *Builder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Builder{store: store, analyzer: analyzer, logger: logger}
}

// Build selects the source's most recent RollupEvery cycle reports,
// re-summarizes them through the analysis backend, and persists the result
// as a summary report referencing its inputs. Returns the stored report
// and its store-relative path.
//
// Analysis failures soft-fail the same way cycles do: the error text
// becomes the narrative, the stats fall back to "N/A", and the report is
// still persisted so the failure is visible to recipients.
func (b *Builder) Build(ctx context.Context, src source.Source, bonus []string, now time.Time) (reportstore.Report, string, error) {
	inputs, err := b.store.ListRecent(src.ID, reportstore.KindCycle, src.RollupEvery)
	if err != nil {
		return reportstore.Report{}, "", fmt.Errorf("select rollup inputs for %s: %w", src.ID, err)
	}
	if len(inputs) == 0 {
		return reportstore.Report{}, "", ErrNoInputs
	}

	// ListRecent is newest-first; compose chronologically.
	for i, j := 0, len(inputs)-1; i < j; i, j = i+1, j-1 {
		inputs[i], inputs[j] = inputs[j], inputs[i]
	}

	var (
		body       strings.Builder
		paths      = make([]string, 0, len(inputs))
		unionStart = inputs[0].AnalysisStartTime
		unionEnd   = inputs[0].AnalysisEndTime
	)
	for _, in := range inputs {
		fmt.Fprintf(&body, "## Report window %s to %s\n\n%s\n\n",
			in.AnalysisStartTime.Format(time.RFC3339),
			in.AnalysisEndTime.Format(time.RFC3339),
			in.AnalysisDetails,
		)
		paths = append(paths, in.Path)
		if in.AnalysisStartTime.Before(unionStart) {
			unionStart = in.AnalysisStartTime
		}
		if in.AnalysisEndTime.After(unionEnd) {
			unionEnd = in.AnalysisEndTime
		}
	}

	b.logger.Info("building rollup",
		"source", src.ID,
		"inputs", len(inputs),
		"window_start", unionStart.Format(time.RFC3339),
		"window_end", unionEnd.Format(time.RFC3339),
	)

	callCtx, cancel := context.WithTimeout(ctx, analysis.RollupTimeout)
	defer cancel()
	raw, err := b.analyzer.Analyze(callCtx, analysis.Request{
		Body:         body.String(),
		BonusContext: bonus,
		Template:     analysis.TemplateRollup,
	})

	var (
		stats     map[string]string
		narrative string
	)
	if err != nil {
		b.logger.Error("rollup analysis failed, producing placeholder report",
			"source", src.ID, "error", err)
		stats = analysis.FallbackStats(analysis.TemplateRollup)
		narrative = fmt.Sprintf("The consolidated analysis could not be produced: %v", err)
	} else {
		var ok bool
		stats, narrative, ok = analysis.ExtractSummary(raw)
		if !ok {
			b.logger.Warn("rollup response had no parseable summary block", "source", src.ID)
			stats = analysis.FallbackStats(analysis.TemplateRollup)
		}
	}

	rep := reportstore.Report{
		ID:                  uuid.NewString(),
		Hostname:            src.Name(),
		Kind:                reportstore.KindSummary,
		AnalysisStartTime:   unionStart,
		AnalysisEndTime:     unionEnd,
		ReportGeneratedTime: now,
		SummaryStats:        stats,
		AnalysisDetails:     narrative,
		SourceReports:       paths,
	}

	path, err := b.store.Save(src.ID, rep, src.Location)
	if err != nil {
		return reportstore.Report{}, "", fmt.Errorf("persist rollup for %s: %w", src.ID, err)
	}
	return rep, path, nil
}
