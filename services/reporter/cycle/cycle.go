// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cycle drives one ingestion cycle per source per scheduler tick:
// read the new log window, analyze it, persist the report, advance the
// rollup counter, fire a rollup at the threshold, and notify recipients.
//
// Ordering is the crash-safety mechanism. The watermark advances inside
// the window read, before analysis; the report is persisted before the
// counter moves; notification happens last and its failure mutates
// nothing. A crash mid-cycle can lose one window's analysis output but
// can never lose log lines or corrupt stored state.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/Firewatch/pkg/logging"
	"github.com/AleutianAI/Firewatch/services/reporter/analysis"
	"github.com/AleutianAI/Firewatch/services/reporter/logwindow"
	"github.com/AleutianAI/Firewatch/services/reporter/metrics"
	"github.com/AleutianAI/Firewatch/services/reporter/notify"
	"github.com/AleutianAI/Firewatch/services/reporter/reportstore"
	"github.com/AleutianAI/Firewatch/services/reporter/rollup"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
)

// cannedEmptyWindow is the narrative used when the window has no new
// lines; the analysis backend is not called in that case.
const cannedEmptyWindow = "No notable events were recorded in this window. " +
	"The firewall log contained no new entries since the previous report."

// WindowReader extracts the new slice of a source's log.
type WindowReader interface {
	ReadWindow(src source.Source, now time.Time) (logwindow.Window, error)
}

// CounterStore is the durable rollup counter.
type CounterStore interface {
	IncrementCycleCount(sourceID string) (int, error)
	ResetCycleCount(sourceID string) error
}

// RollupBuilder produces a consolidated report from prior cycle reports.
type RollupBuilder interface {
	Build(ctx context.Context, src source.Source, bonus []string, now time.Time) (reportstore.Report, string, error)
}

// Result summarizes one completed cycle for logging and tests.
type Result struct {
	// ReportPath is the store-relative path of the persisted cycle report.
	ReportPath string

	// RollupPath is set when this cycle triggered a rollup that produced
	// a report.
	RollupPath string

	// Status is the metrics outcome label (ok, soft_failed, skipped).
	Status string

	// CycleCount is the counter value after this cycle (0 if a rollup
	// reset it).
	CycleCount int
}

// Runner executes cycles. All collaborators are injected; the scheduler
// constructs one Runner per tick from freshly loaded configuration.
type Runner struct {
	reader   WindowReader
	analyzer analysis.Analyzer
	store    *reportstore.Store
	counters CounterStore
	rollups  RollupBuilder
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *logging.Logger

	// logoPath, when set, is attached to every outbound report mail.
	logoPath string
}

// Config wires a Runner.
type Config struct {
	Reader   WindowReader
	Analyzer analysis.Analyzer
	Store    *reportstore.Store
	Counters CounterStore
	Rollups  RollupBuilder
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
	LogoPath string
}

// NewRunner creates a Runner from config.
func NewRunner(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Runner{
		reader:   cfg.Reader,
		analyzer: cfg.Analyzer,
		store:    cfg.Store,
		counters: cfg.Counters,
		rollups:  cfg.Rollups,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		logoPath: cfg.LogoPath,
	}
}

// RunCycle executes one full cycle for src as of now. The returned error
// is non-nil only when the cycle aborted before a report could be
// persisted (unreadable source, store failure); analysis problems
// soft-fail into a persisted placeholder report instead.
func (r *Runner) RunCycle(ctx context.Context, src source.Source, now time.Time) (Result, error) {
	log := r.logger.With("source", src.ID)

	window, err := r.reader.ReadWindow(src, now)
	if err != nil {
		r.metrics.CyclesTotal.WithLabelValues(src.ID, metrics.StatusError).Inc()
		return Result{}, fmt.Errorf("read window: %w", err)
	}
	r.metrics.LogLinesTotal.WithLabelValues(src.ID).Add(float64(window.Lines))

	bonus := r.loadBonusContext(src, log)

	stats, narrative, status := r.analyzeWindow(ctx, src, window, bonus, log)

	rep := reportstore.Report{
		ID:                  uuid.NewString(),
		Hostname:            src.Name(),
		Kind:                reportstore.KindCycle,
		AnalysisStartTime:   window.Start,
		AnalysisEndTime:     window.End,
		ReportGeneratedTime: now,
		SummaryStats:        stats,
		AnalysisDetails:     narrative,
	}
	reportPath, err := r.store.Save(src.ID, rep, src.Location)
	if err != nil {
		r.metrics.CyclesTotal.WithLabelValues(src.ID, metrics.StatusError).Inc()
		return Result{}, fmt.Errorf("persist cycle report: %w", err)
	}

	count, rollupPath := r.afterCycle(ctx, src, bonus, now, log)

	r.sendReport(ctx, src, rep, src.Recipients, log)

	r.metrics.CyclesTotal.WithLabelValues(src.ID, status).Inc()
	log.Info("cycle complete",
		"status", status,
		"lines", window.Lines,
		"report", reportPath,
		"cycle_count", count,
	)

	return Result{
		ReportPath: reportPath,
		RollupPath: rollupPath,
		Status:     status,
		CycleCount: count,
	}, nil
}

// analyzeWindow produces the stats and narrative for the window,
// short-circuiting empty windows and soft-failing backend errors.
func (r *Runner) analyzeWindow(ctx context.Context, src source.Source, window logwindow.Window, bonus []string, log *logging.Logger) (map[string]string, string, string) {
	if window.Empty() {
		log.Info("window empty, skipping analysis call")
		return analysis.FallbackStats(analysis.TemplateCycle), cannedEmptyWindow, metrics.StatusSkipped
	}

	callCtx, cancel := context.WithTimeout(ctx, analysis.CycleTimeout)
	defer cancel()
	raw, err := r.analyzer.Analyze(callCtx, analysis.Request{
		Body:         window.Text,
		BonusContext: bonus,
		Template:     analysis.TemplateCycle,
	})
	if err != nil {
		// The failure must reach the recipient, not vanish: persist and
		// mail a placeholder report naming the error.
		log.Error("analysis failed, producing placeholder report", "error", err)
		narrative := fmt.Sprintf("The log analysis could not be completed: %v", err)
		return analysis.FallbackStats(analysis.TemplateCycle), narrative, metrics.StatusSoftFailed
	}

	stats, narrative, ok := analysis.ExtractSummary(raw)
	if !ok {
		log.Warn("analysis response had no parseable summary block")
		return analysis.FallbackStats(analysis.TemplateCycle), raw, metrics.StatusOK
	}
	return stats, narrative, metrics.StatusOK
}

// afterCycle advances the rollup counter and fires a rollup when the
// source's threshold is reached. Returns the counter value after this
// cycle and the rollup report path, if one was produced.
func (r *Runner) afterCycle(ctx context.Context, src source.Source, bonus []string, now time.Time, log *logging.Logger) (int, string) {
	count, err := r.counters.IncrementCycleCount(src.ID)
	if err != nil {
		log.Error("failed to advance rollup counter", "error", err)
		return 0, ""
	}
	if src.RollupEvery <= 0 || count < src.RollupEvery {
		return count, ""
	}

	rep, path, err := r.rollups.Build(ctx, src, bonus, now)
	if err != nil {
		log.Error("rollup failed", "error", err, "cycle_count", count)
		// Resetting applies only to the no-inputs case, where the default
		// is to skip the period; sources can opt into retrying next cycle.
		// Transient store failures always leave the counter at threshold
		// so the rollup retries with its inputs intact.
		if errors.Is(err, rollup.ErrNoInputs) && src.ResetCounterOnEmptyRollup {
			if rerr := r.counters.ResetCycleCount(src.ID); rerr != nil {
				log.Error("failed to reset rollup counter", "error", rerr)
			}
			return 0, ""
		}
		return count, ""
	}

	if err := r.counters.ResetCycleCount(src.ID); err != nil {
		log.Error("failed to reset rollup counter", "error", err)
	}
	r.metrics.RollupsTotal.WithLabelValues(src.ID).Inc()
	log.Info("rollup produced", "report", path, "inputs", len(rep.SourceReports))

	r.sendReport(ctx, src, rep, src.RollupTargets(), log)
	return 0, path
}

// sendReport mails one report. Failures are logged and counted, never
// propagated.
func (r *Runner) sendReport(ctx context.Context, src source.Source, rep reportstore.Report, recipients []string, log *logging.Logger) {
	if len(recipients) == 0 {
		return
	}

	msg := notify.Message{
		Subject:      reportSubject(src, rep),
		MarkdownBody: reportBody(rep),
		Recipients:   recipients,
	}
	if r.logoPath != "" {
		msg.Attachments = []string{r.logoPath}
	}

	if err := r.notifier.Send(ctx, msg); err != nil {
		r.metrics.NotifyFailuresTotal.WithLabelValues(src.ID).Inc()
		log.Error("report mail delivery failed", "error", err, "kind", rep.Kind)
	}
}
