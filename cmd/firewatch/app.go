// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/AleutianAI/Firewatch/cmd/firewatch/config"
	"github.com/AleutianAI/Firewatch/pkg/logging"
	"github.com/AleutianAI/Firewatch/services/reporter/analysis"
	"github.com/AleutianAI/Firewatch/services/reporter/cycle"
	"github.com/AleutianAI/Firewatch/services/reporter/logwindow"
	"github.com/AleutianAI/Firewatch/services/reporter/metrics"
	"github.com/AleutianAI/Firewatch/services/reporter/notify"
	"github.com/AleutianAI/Firewatch/services/reporter/reportstore"
	"github.com/AleutianAI/Firewatch/services/reporter/rollup"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
	"github.com/AleutianAI/Firewatch/services/reporter/state"
)

// app holds the assembled service graph for the run and once commands.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	state   *state.Store
	store   *reportstore.Store
	metrics *metrics.Metrics
	runner  *cycle.Runner
}

// buildApp loads the config at configPath and wires every component.
// The caller owns the returned app and must call close().
func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "firewatch",
	})

	st, err := state.Open(cfg.StateDir)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("open state store: %w", err)
	}

	store := reportstore.New(cfg.ReportDir, logger)

	analyzer, err := analysis.NewOpenAIAnalyzer(analysis.OpenAIConfig{
		APIKey:  cfg.Analysis.APIKey,
		Model:   cfg.Analysis.Model,
		BaseURL: cfg.Analysis.BaseURL,
	}, logger)
	if err != nil {
		st.Close()
		logger.Close()
		return nil, fmt.Errorf("configure analysis backend: %w", err)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.SMTP.Host != "" {
		notifier, err = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Sender:   cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}, logger)
		if err != nil {
			st.Close()
			logger.Close()
			return nil, fmt.Errorf("configure mail delivery: %w", err)
		}
	} else {
		logger.Warn("no smtp host configured, reports will be persisted but not mailed")
	}

	m := metrics.New()
	runner := cycle.NewRunner(cycle.Config{
		Reader:   logwindow.NewReader(st, logger),
		Analyzer: analyzer,
		Store:    store,
		Counters: st,
		Rollups:  rollup.NewBuilder(store, analyzer, logger),
		Notifier: notifier,
		Metrics:  m,
		Logger:   logger,
		LogoPath: cfg.LogoPath,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		state:   st,
		store:   store,
		metrics: m,
		runner:  runner,
	}, nil
}

// sourceProvider re-reads the config file so source edits apply on the
// next tick without a restart. Structural settings (state dir, report
// dir, backends) still require a restart; only the source list is
// refreshed.
func (a *app) sourceProvider(configPath string) func() ([]source.Source, error) {
	return func() ([]source.Source, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return cfg.RuntimeSources()
	}
}

func (a *app) close() {
	if err := a.state.Close(); err != nil {
		a.logger.Error("state store close failed", "error", err)
	}
	a.logger.Close()
}
