// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/Firewatch/cmd/firewatch/config"
	"github.com/AleutianAI/Firewatch/services/reporter/api"
	"github.com/AleutianAI/Firewatch/services/reporter/reportstore"
	"github.com/AleutianAI/Firewatch/services/reporter/scheduler"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion scheduler as a long-lived service",
	Long: `Starts the periodic ingestion loop and, when enabled in the
configuration, the HTTP status server. The process runs until it
receives SIGINT or SIGTERM, then shuts down gracefully.`,
	RunE: runService,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single ingestion pass over all sources and exit",
	RunE:  runOnce,
}

var (
	reportsKind  string
	reportsLimit int
)

var reportsCmd = &cobra.Command{
	Use:   "reports [source-id]",
	Short: "List recent persisted reports for a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runReports,
}

func init() {
	reportsCmd.Flags().StringVar(&reportsKind, "kind", "cycle", "Report kind to list (cycle or summary)")
	reportsCmd.Flags().IntVar(&reportsLimit, "limit", 10, "Maximum number of reports to list")
}

func runService(cmd *cobra.Command, args []string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider := a.sourceProvider(configPath)
	sched := scheduler.New(a.runner, provider, a.logger, scheduler.Config{
		Interval: time.Duration(a.cfg.Interval),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return sched.Stop()
	})

	if a.cfg.API.Enabled {
		server := api.New(api.Config{
			Addr:  a.cfg.API.Addr,
			Debug: a.cfg.API.Debug,
		}, a.store, api.SourceProvider(provider), a.metrics, a.logger)
		g.Go(func() error {
			return server.ListenAndServe(gctx)
		})
	}

	a.logger.Info("firewatch started",
		"version", version,
		"interval", time.Duration(a.cfg.Interval).String(),
		"api_enabled", a.cfg.API.Enabled,
	)
	return g.Wait()
}

func runOnce(cmd *cobra.Command, args []string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	srcs, err := a.cfg.RuntimeSources()
	if err != nil {
		return err
	}

	sched := scheduler.New(a.runner, func() ([]source.Source, error) { return srcs, nil }, a.logger, scheduler.DefaultConfig())
	sched.RunNow(cmd.Context())
	return nil
}

// runReports only needs the report directory, so it skips the full
// service graph (no state store, no backend credentials).
func runReports(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	kind := reportstore.Kind(reportsKind)
	if !kind.Valid() {
		return fmt.Errorf("kind must be cycle or summary, got %q", reportsKind)
	}

	store := reportstore.New(cfg.ReportDir, nil)
	reports, err := store.ListRecent(args[0], kind, reportsLimit)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		cmd.Println("no reports found")
		return nil
	}

	for _, rep := range reports {
		cmd.Printf("%s  %s  window %s to %s\n",
			rep.ReportGeneratedTime.Format(time.RFC3339),
			rep.Path,
			rep.AnalysisStartTime.Format(time.RFC3339),
			rep.AnalysisEndTime.Format(time.RFC3339),
		)
	}
	return nil
}
