// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Firewatch/services/reporter/analysis"
	"github.com/AleutianAI/Firewatch/services/reporter/logwindow"
	"github.com/AleutianAI/Firewatch/services/reporter/notify"
	"github.com/AleutianAI/Firewatch/services/reporter/reportstore"
	"github.com/AleutianAI/Firewatch/services/reporter/rollup"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
	"github.com/AleutianAI/Firewatch/services/reporter/state"
)

// fakeAnalyzer records calls and returns a canned response or error.
type fakeAnalyzer struct {
	calls    int
	requests []analysis.Request
	response string
	err      error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// fakeNotifier records sent messages and optionally fails.
type fakeNotifier struct {
	sent []notify.Message
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, msg notify.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

// harness wires a Runner over real stores and fakes for the externals.
type harness struct {
	runner   *Runner
	state    *state.Store
	store    *reportstore.Store
	analyzer *fakeAnalyzer
	notifier *fakeNotifier
	src      source.Source
}

func newHarness(t *testing.T, logLines string) *harness {
	t.Helper()

	st, err := state.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logPath := filepath.Join(t.TempDir(), "filter.log")
	require.NoError(t, os.WriteFile(logPath, []byte(logLines), 0644))

	store := reportstore.New(t.TempDir(), nil)
	an := &fakeAnalyzer{response: "findings\n```json\n{\"alerts_count\":\"2\",\"threat_level\":\"low\"}\n```"}
	nt := &fakeNotifier{}

	src := source.Source{
		ID:                        "fw-edge",
		Hostname:                  "edge.example.com",
		LogPath:                   logPath,
		Lookback:                  time.Hour,
		Location:                  time.UTC,
		Recipients:                []string{"ops@example.com"},
		RollupEvery:               3,
		ResetCounterOnEmptyRollup: true,
	}

	runner := NewRunner(Config{
		Reader:   logwindow.NewReader(st, nil),
		Analyzer: an,
		Store:    store,
		Counters: st,
		Rollups:  rollup.NewBuilder(store, an, nil),
		Notifier: nt,
	})

	return &harness{runner: runner, state: st, store: store, analyzer: an, notifier: nt, src: src}
}

// TestEndToEndFirstRun covers the full first-cycle scenario: one line in
// the lookback window, one stale line.
func TestEndToEndFirstRun(t *testing.T) {
	h := newHarness(t,
		"Aug 29 11:30:00 filterlog: recent block event\n"+
			"Aug 29 10:00:00 filterlog: stale event\n")
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	res, err := h.runner.RunCycle(context.Background(), h.src, now)
	require.NoError(t, err)

	// Only the recent line was analyzed.
	require.Len(t, h.analyzer.requests, 1)
	assert.Contains(t, h.analyzer.requests[0].Body, "recent block event")
	assert.NotContains(t, h.analyzer.requests[0].Body, "stale event")

	// Watermark landed on the accepted line's timestamp.
	mark, found, err := h.state.Watermark("fw-edge")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, time.Date(2026, 8, 29, 11, 30, 0, 0, time.UTC), mark)

	// Exactly one cycle report was written, counter is 1.
	reports, err := h.store.ListRecent("fw-edge", reportstore.KindCycle, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "2", reports[0].SummaryStats["alerts_count"])
	assert.Equal(t, "findings", reports[0].AnalysisDetails)
	assert.Equal(t, 1, res.CycleCount)

	// One mail went out with the narrative in the body.
	require.Len(t, h.notifier.sent, 1)
	assert.Contains(t, h.notifier.sent[0].Subject, "edge.example.com")
	assert.Contains(t, h.notifier.sent[0].MarkdownBody, "findings")
	assert.Contains(t, h.notifier.sent[0].MarkdownBody, "alerts_count")
}

// TestEmptyWindowSkipsAnalyzer: no new lines means no backend call, but a
// report is still persisted and mailed.
func TestEmptyWindowSkipsAnalyzer(t *testing.T) {
	h := newHarness(t, "Aug 29 09:00:00 filterlog: hours old\n")
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	res, err := h.runner.RunCycle(context.Background(), h.src, now)
	require.NoError(t, err)

	assert.Equal(t, 0, h.analyzer.calls)
	assert.Equal(t, "skipped", res.Status)

	reports, err := h.store.ListRecent("fw-edge", reportstore.KindCycle, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].AnalysisDetails, "No notable events")
	assert.Equal(t, "N/A", reports[0].SummaryStats["alerts_count"])
	assert.Len(t, h.notifier.sent, 1)
}

// TestAnalysisSoftFail: a backend error still persists and mails a
// placeholder report naming the failure.
func TestAnalysisSoftFail(t *testing.T) {
	h := newHarness(t, "Aug 29 11:30:00 filterlog: event\n")
	h.analyzer.err = context.DeadlineExceeded
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	res, err := h.runner.RunCycle(context.Background(), h.src, now)
	require.NoError(t, err)
	assert.Equal(t, "soft_failed", res.Status)

	reports, err := h.store.ListRecent("fw-edge", reportstore.KindCycle, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].AnalysisDetails, "could not be completed")
	assert.Equal(t, "N/A", reports[0].SummaryStats["threat_level"])
	require.Len(t, h.notifier.sent, 1)
	assert.Contains(t, h.notifier.sent[0].MarkdownBody, "could not be completed")
}

// TestNoSummaryBlockKeepsRawNarrative: an OK response without a fenced
// block keeps the full raw text and falls back to N/A stats.
func TestNoSummaryBlockKeepsRawNarrative(t *testing.T) {
	h := newHarness(t, "Aug 29 11:30:00 filterlog: event\n")
	h.analyzer.response = "prose report without structured data"
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	_, err := h.runner.RunCycle(context.Background(), h.src, now)
	require.NoError(t, err)

	reports, err := h.store.ListRecent("fw-edge", reportstore.KindCycle, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "prose report without structured data", reports[0].AnalysisDetails)
	assert.Equal(t, "N/A", reports[0].SummaryStats["alerts_count"])
}

// TestRollupTrigger: with threshold 3, a rollup fires on the third cycle
// and the counter resets, with no rollup at counts 1 and 2.
func TestRollupTrigger(t *testing.T) {
	h := newHarness(t, "")
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		now := base.Add(time.Duration(i) * time.Hour)
		line := now.Add(-10*time.Minute).Format("Jan _2 15:04:05") + " filterlog: event\n"
		require.NoError(t, os.WriteFile(h.src.LogPath, []byte(line), 0644))

		res, err := h.runner.RunCycle(context.Background(), h.src, now)
		require.NoError(t, err)
		assert.Empty(t, res.RollupPath, "no rollup before the threshold")
		assert.Equal(t, i+1, res.CycleCount)
	}

	now := base.Add(2 * time.Hour)
	line := now.Add(-10*time.Minute).Format("Jan _2 15:04:05") + " filterlog: event\n"
	require.NoError(t, os.WriteFile(h.src.LogPath, []byte(line), 0644))

	res, err := h.runner.RunCycle(context.Background(), h.src, now)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RollupPath)
	assert.Equal(t, 0, res.CycleCount)

	summaries, err := h.store.ListRecent("fw-edge", reportstore.KindSummary, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Len(t, summaries[0].SourceReports, 3)

	count, err := h.state.CycleCount("fw-edge")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Three cycle mails plus one rollup mail.
	assert.Len(t, h.notifier.sent, 4)
}

// fakeRollupBuilder returns a canned error so counter policy can be
// exercised without a real report tree.
type fakeRollupBuilder struct {
	calls int
	err   error
}

func (f *fakeRollupBuilder) Build(ctx context.Context, src source.Source, bonus []string, now time.Time) (reportstore.Report, string, error) {
	f.calls++
	return reportstore.Report{}, "", f.err
}

// withRollupBuilder rebuilds the harness runner around a replacement
// rollup builder, keeping the shared state and report stores.
func (h *harness) withRollupBuilder(b RollupBuilder) {
	h.runner = NewRunner(Config{
		Reader:   logwindow.NewReader(h.state, nil),
		Analyzer: h.analyzer,
		Store:    h.store,
		Counters: h.state,
		Rollups:  b,
		Notifier: h.notifier,
	})
}

// TestEmptyRollupResetsCounterByDefault: a rollup that finds no inputs
// resets the counter, skipping the period.
func TestEmptyRollupResetsCounterByDefault(t *testing.T) {
	h := newHarness(t, "Aug 29 11:30:00 filterlog: event\n")
	builder := &fakeRollupBuilder{err: rollup.ErrNoInputs}
	h.withRollupBuilder(builder)
	h.src.RollupEvery = 1
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	res, err := h.runner.RunCycle(context.Background(), h.src, now)
	require.NoError(t, err)
	assert.Equal(t, 1, builder.calls)
	assert.Empty(t, res.RollupPath)
	assert.Equal(t, 0, res.CycleCount)

	count, err := h.state.CycleCount("fw-edge")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// TestEmptyRollupRetryPolicy: with the reset opt-out, the counter stays
// at threshold so the next cycle attempts the rollup again.
func TestEmptyRollupRetryPolicy(t *testing.T) {
	h := newHarness(t, "Aug 29 11:30:00 filterlog: event\n")
	builder := &fakeRollupBuilder{err: rollup.ErrNoInputs}
	h.withRollupBuilder(builder)
	h.src.RollupEvery = 1
	h.src.ResetCounterOnEmptyRollup = false

	res, err := h.runner.RunCycle(context.Background(), h.src, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, res.CycleCount)

	count, err := h.state.CycleCount("fw-edge")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Next cycle crosses the threshold again and retries the rollup.
	line := "Aug 29 12:30:00 filterlog: later event\n"
	require.NoError(t, os.WriteFile(h.src.LogPath, []byte(line), 0644))
	_, err = h.runner.RunCycle(context.Background(), h.src, time.Date(2026, 8, 29, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, builder.calls)
}

// TestTransientRollupFailureKeepsCounter: only the no-inputs case may
// reset; a store failure leaves the counter at threshold regardless of
// the reset policy.
func TestTransientRollupFailureKeepsCounter(t *testing.T) {
	h := newHarness(t, "Aug 29 11:30:00 filterlog: event\n")
	builder := &fakeRollupBuilder{err: errors.New("persist rollup: disk full")}
	h.withRollupBuilder(builder)
	h.src.RollupEvery = 1

	res, err := h.runner.RunCycle(context.Background(), h.src, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, res.CycleCount)

	count, err := h.state.CycleCount("fw-edge")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "counter must survive a transient rollup failure")
}

// TestNotifyFailureDoesNotAffectState: delivery failure is logged only.
func TestNotifyFailureDoesNotAffectState(t *testing.T) {
	h := newHarness(t, "Aug 29 11:30:00 filterlog: event\n")
	h.notifier.err = errors.New("smtp down")
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	res, err := h.runner.RunCycle(context.Background(), h.src, now)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, 1, res.CycleCount)

	reports, err := h.store.ListRecent("fw-edge", reportstore.KindCycle, 10)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

// TestSourceUnavailableAborts: a missing log file aborts the cycle with
// nothing persisted and no counter movement.
func TestSourceUnavailableAborts(t *testing.T) {
	h := newHarness(t, "")
	h.src.LogPath = filepath.Join(t.TempDir(), "missing.log")

	_, err := h.runner.RunCycle(context.Background(), h.src, time.Now().UTC())
	assert.ErrorIs(t, err, logwindow.ErrSourceUnavailable)

	reports, err := h.store.ListRecent("fw-edge", reportstore.KindCycle, 10)
	require.NoError(t, err)
	assert.Empty(t, reports)

	count, err := h.state.CycleCount("fw-edge")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, h.notifier.sent)
}

// TestBonusContextForwarded: readable bonus files reach the analyzer,
// unreadable ones are skipped.
func TestBonusContextForwarded(t *testing.T) {
	h := newHarness(t, "Aug 29 11:30:00 filterlog: event\n")

	bonusPath := filepath.Join(t.TempDir(), "network-map.txt")
	require.NoError(t, os.WriteFile(bonusPath, []byte("10.0.0.0/8 is internal"), 0644))
	h.src.BonusContext = []string{bonusPath, filepath.Join(t.TempDir(), "missing.txt")}

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	_, err := h.runner.RunCycle(context.Background(), h.src, now)
	require.NoError(t, err)

	require.Len(t, h.analyzer.requests, 1)
	require.Len(t, h.analyzer.requests[0].BonusContext, 1)
	assert.Equal(t, "10.0.0.0/8 is internal", h.analyzer.requests[0].BonusContext[0])
}
