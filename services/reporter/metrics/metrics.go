// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics exposes Prometheus counters for the reporter pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle outcome labels.
const (
	StatusOK         = "ok"
	StatusSoftFailed = "soft_failed"
	StatusSkipped    = "skipped"
	StatusError      = "error"
)

// Metrics holds the reporter's counters, registered against one registry
// so tests can use isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal         *prometheus.CounterVec
	RollupsTotal        *prometheus.CounterVec
	LogLinesTotal       *prometheus.CounterVec
	NotifyFailuresTotal *prometheus.CounterVec
}

// New creates a Metrics set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "firewatch_cycles_total",
			Help: "Completed ingestion cycles by source and outcome.",
		}, []string{"source", "status"}),
		RollupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "firewatch_rollups_total",
			Help: "Rollup reports produced by source.",
		}, []string{"source"}),
		LogLinesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "firewatch_log_lines_total",
			Help: "Log lines accepted into analysis windows by source.",
		}, []string{"source"}),
		NotifyFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "firewatch_notify_failures_total",
			Help: "Report mail deliveries that failed by source.",
		}, []string{"source"}),
	}
}

// Registry returns the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
