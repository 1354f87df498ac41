// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scheduler runs the periodic ingestion loop. Each tick it asks
// the source provider for the current source list and runs one cycle per
// source, strictly in order. Uses the ticker + done channel pattern for
// graceful shutdown.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/Firewatch/pkg/logging"
	"github.com/AleutianAI/Firewatch/services/reporter/cycle"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
)

// CycleRunner executes one ingestion cycle for a source.
type CycleRunner interface {
	RunCycle(ctx context.Context, src source.Source, now time.Time) (cycle.Result, error)
}

// SourceProvider returns the sources to process on a tick. It is invoked
// on every tick so configuration edits take effect without a restart.
type SourceProvider func() ([]source.Source, error)

// Config holds scheduler settings.
//
// # Fields
//
//   - Interval: How often to run an ingestion pass. Default: 1 hour.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{Interval: 1 * time.Hour}
}

// Scheduler drives periodic ingestion passes.
//
// # Description
//
// Manages the lifecycle of a background goroutine that periodically runs
// one cycle per configured source. Sources are processed sequentially so
// a shared analysis backend never sees concurrent load from one instance,
// and a failure on one source never blocks the rest of the pass.
//
// # Thread Safety
//
// All public methods are thread-safe. A mutex protects the running state.
type Scheduler struct {
	runner  CycleRunner
	sources SourceProvider
	logger  *logging.Logger
	config  Config
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// New creates a Scheduler. logger may be nil to use the default logger.
func New(runner CycleRunner, sources SourceProvider, logger *logging.Logger, config Config) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Scheduler{
		runner:  runner,
		sources: sources,
		logger:  logger,
		config:  config,
		done:    make(chan struct{}),
	}
}

// Start begins the background ingestion loop.
//
// # Description
//
// Starts a goroutine that runs an ingestion pass immediately, then again
// at the configured interval, until Stop() is called or the context is
// cancelled.
//
// # Outputs
//
//   - error: Non-nil if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // Reset done channel for potential restart
	s.mu.Unlock()

	s.logger.Info("ingestion scheduler starting", "interval", s.config.Interval.String())
	go s.runLoop(ctx)
	return nil
}

// Stop gracefully stops the scheduler. Safe to call multiple times. Does
// not interrupt a pass already in progress.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil // Already stopped
	}

	s.logger.Info("ingestion scheduler stopping")
	close(s.done)
	s.running = false
	return nil
}

// RunNow performs a single ingestion pass immediately without waiting for
// the next scheduled tick. Useful for the one-shot CLI mode and tests.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runPass(ctx)
}

// runLoop is the main scheduler goroutine.
func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run an initial pass immediately on start
	s.runPass(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ingestion scheduler stopped (context cancelled)")
			return
		case <-s.done:
			s.logger.Info("ingestion scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

// runPass runs one cycle per source, sequentially. A provider failure
// skips the whole pass; a per-source failure skips only that source.
func (s *Scheduler) runPass(ctx context.Context) {
	srcs, err := s.sources()
	if err != nil {
		s.logger.Error("skipping ingestion pass, source list unavailable", "error", err)
		return
	}
	if len(srcs) == 0 {
		s.logger.Debug("ingestion pass with no configured sources")
		return
	}

	start := time.Now()
	for _, src := range srcs {
		select {
		case <-ctx.Done():
			s.logger.Info("ingestion pass interrupted", "source", src.ID)
			return
		default:
		}
		s.runOne(ctx, src)
	}
	s.logger.Info("ingestion pass complete",
		"sources", len(srcs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// runOne executes a single source's cycle with panic containment, so one
// misbehaving source cannot take down the whole loop.
func (s *Scheduler) runOne(ctx context.Context, src source.Source) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cycle panicked", "source", src.ID, "panic", r)
		}
	}()

	if _, err := s.runner.RunCycle(ctx, src, time.Now()); err != nil {
		s.logger.Error("cycle failed", "source", src.ID, "error", err)
	}
}
