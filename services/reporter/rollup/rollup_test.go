// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rollup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Firewatch/services/reporter/analysis"
	"github.com/AleutianAI/Firewatch/services/reporter/reportstore"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
)

// fakeAnalyzer records requests and returns a canned response or error.
type fakeAnalyzer struct {
	requests []analysis.Request
	response string
	err      error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func testSource() source.Source {
	return source.Source{
		ID:          "fw-edge",
		Hostname:    "edge.example.com",
		Location:    time.UTC,
		RollupEvery: 3,
	}
}

func saveCycle(t *testing.T, store *reportstore.Store, generated time.Time, narrative string) {
	t.Helper()
	_, err := store.Save("fw-edge", reportstore.Report{
		ID:                  uuid.NewString(),
		Hostname:            "edge.example.com",
		Kind:                reportstore.KindCycle,
		AnalysisStartTime:   generated.Add(-time.Hour),
		AnalysisEndTime:     generated,
		ReportGeneratedTime: generated,
		SummaryStats:        map[string]string{"alerts_count": "1"},
		AnalysisDetails:     narrative,
	}, time.UTC)
	require.NoError(t, err)
}

func TestBuildNoInputs(t *testing.T) {
	store := reportstore.New(t.TempDir(), nil)
	builder := NewBuilder(store, &fakeAnalyzer{}, nil)

	_, _, err := builder.Build(context.Background(), testSource(), nil, time.Now().UTC())
	assert.ErrorIs(t, err, ErrNoInputs)
}

func TestBuildComposesChronologically(t *testing.T) {
	store := reportstore.New(t.TempDir(), nil)
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	saveCycle(t, store, base, "first window report")
	saveCycle(t, store, base.Add(time.Hour), "second window report")
	saveCycle(t, store, base.Add(2*time.Hour), "third window report")

	fake := &fakeAnalyzer{response: "period summary\n```json\n{\"trend\":\"steady\"}\n```"}
	builder := NewBuilder(store, fake, nil)

	now := base.Add(3 * time.Hour)
	rep, path, err := builder.Build(context.Background(), testSource(), nil, now)
	require.NoError(t, err)
	require.Len(t, fake.requests, 1)

	req := fake.requests[0]
	assert.Equal(t, analysis.TemplateRollup, req.Template)
	first := strings.Index(req.Body, "first window report")
	second := strings.Index(req.Body, "second window report")
	third := strings.Index(req.Body, "third window report")
	assert.True(t, first < second && second < third, "inputs must be chronological")
	assert.Contains(t, req.Body, "## Report window")

	// Union window spans min start to max end.
	assert.Equal(t, base.Add(-time.Hour), rep.AnalysisStartTime.UTC())
	assert.Equal(t, base.Add(2*time.Hour), rep.AnalysisEndTime.UTC())

	assert.Equal(t, reportstore.KindSummary, rep.Kind)
	assert.Equal(t, "steady", rep.SummaryStats["trend"])
	assert.Equal(t, "period summary", rep.AnalysisDetails)
	require.Len(t, rep.SourceReports, 3)
	assert.Contains(t, path, "summary")

	// The persisted document matches what was returned.
	stored, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, rep.ID, stored.ID)
}

// TestBuildSelectsMostRecentThreshold: only RollupEvery newest cycles are
// merged when more exist.
func TestBuildSelectsMostRecentThreshold(t *testing.T) {
	store := reportstore.New(t.TempDir(), nil)
	base := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		saveCycle(t, store, base.Add(time.Duration(i)*time.Hour), "report number "+strings.Repeat("x", i+1))
	}

	fake := &fakeAnalyzer{response: "summary"}
	builder := NewBuilder(store, fake, nil)

	rep, _, err := builder.Build(context.Background(), testSource(), nil, base.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Len(t, rep.SourceReports, 3)
	assert.NotContains(t, fake.requests[0].Body, "report number x\n", "oldest reports must be excluded")
}

// TestBuildNeverConsumesSummaries: an existing rollup in the tree is not a
// candidate input, even when it is the newest document.
func TestBuildNeverConsumesSummaries(t *testing.T) {
	store := reportstore.New(t.TempDir(), nil)
	base := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	saveCycle(t, store, base, "cycle report")

	_, err := store.Save("fw-edge", reportstore.Report{
		ID:                  uuid.NewString(),
		Kind:                reportstore.KindSummary,
		AnalysisStartTime:   base,
		AnalysisEndTime:     base.Add(time.Hour),
		ReportGeneratedTime: base.Add(2 * time.Hour),
		SummaryStats:        map[string]string{},
		AnalysisDetails:     "previous rollup narrative",
	}, time.UTC)
	require.NoError(t, err)

	fake := &fakeAnalyzer{response: "summary"}
	builder := NewBuilder(store, fake, nil)

	rep, _, err := builder.Build(context.Background(), testSource(), nil, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Len(t, rep.SourceReports, 1)
	assert.NotContains(t, fake.requests[0].Body, "previous rollup narrative")
}

// TestBuildSoftFailsOnAnalyzerError: backend failure still persists a
// visible placeholder summary.
func TestBuildSoftFailsOnAnalyzerError(t *testing.T) {
	store := reportstore.New(t.TempDir(), nil)
	saveCycle(t, store, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), "cycle report")

	fake := &fakeAnalyzer{err: errors.New("backend unreachable")}
	builder := NewBuilder(store, fake, nil)

	rep, path, err := builder.Build(context.Background(), testSource(), nil, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "N/A", rep.SummaryStats["total_alerts_period"])
	assert.Contains(t, rep.AnalysisDetails, "backend unreachable")
	assert.NotEmpty(t, path)
}

// TestBuildFallbackStatsOnUnparseableResponse covers a response with no
// fenced summary block.
func TestBuildFallbackStatsOnUnparseableResponse(t *testing.T) {
	store := reportstore.New(t.TempDir(), nil)
	saveCycle(t, store, time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC), "cycle report")

	fake := &fakeAnalyzer{response: "prose only, no json block"}
	builder := NewBuilder(store, fake, nil)

	rep, _, err := builder.Build(context.Background(), testSource(), nil, time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "N/A", rep.SummaryStats["trend"])
	assert.Equal(t, "prose only, no json block", rep.AnalysisDetails)
}
