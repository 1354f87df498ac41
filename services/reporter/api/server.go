// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api serves the operator-facing status endpoints: health,
// Prometheus metrics, and read-only access to persisted reports.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/Firewatch/pkg/logging"
	"github.com/AleutianAI/Firewatch/services/reporter/metrics"
	"github.com/AleutianAI/Firewatch/services/reporter/reportstore"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
)

const defaultListLimit = 10

// SourceProvider returns the currently configured sources.
type SourceProvider func() ([]source.Source, error)

// Config holds the status server settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Debug enables Gin debug mode and request logging.
	Debug bool
}

// Server is the HTTP status server.
type Server struct {
	store   *reportstore.Store
	sources SourceProvider
	metrics *metrics.Metrics
	logger  *logging.Logger
	httpSrv *http.Server
}

// New creates a Server. logger may be nil to use the default logger.
func New(cfg Config, store *reportstore.Store, sources SourceProvider, m *metrics.Metrics, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	if m == nil {
		m = metrics.New()
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		store:   store,
		sources: sources,
		metrics: m,
		logger:  logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Debug {
		router.Use(gin.Logger())
	}
	s.registerRoutes(router)

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// registerRoutes wires all endpoints.
//
// Endpoints:
//
//	GET /healthz - Liveness check
//	GET /metrics - Prometheus metrics
//	GET /api/v1/sources - Configured source IDs
//	GET /api/v1/reports/:source - Recent reports (query: kind, limit)
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.metrics.Registry(),
		promhttp.HandlerOpts{},
	)))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/sources", s.handleSources)
		v1.GET("/reports/:source", s.handleReports)
	}
}

// ListenAndServe blocks serving requests until the context is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		return <-errCh
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSources(c *gin.Context) {
	srcs, err := s.sources()
	if err != nil {
		s.logger.Error("source list unavailable", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "source list unavailable"})
		return
	}

	type sourceInfo struct {
		ID          string `json:"id"`
		Hostname    string `json:"hostname"`
		RollupEvery int    `json:"rollup_every"`
	}
	out := make([]sourceInfo, 0, len(srcs))
	for _, src := range srcs {
		out = append(out, sourceInfo{ID: src.ID, Hostname: src.Name(), RollupEvery: src.RollupEvery})
	}
	c.JSON(http.StatusOK, gin.H{"sources": out})
}

// handleReports returns the most recent persisted reports for one source.
// kind selects the subtree (cycle or summary, default cycle); limit caps
// the result count.
func (s *Server) handleReports(c *gin.Context) {
	sourceID := c.Param("source")
	if !s.knownSource(sourceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown source"})
		return
	}

	kind := reportstore.KindCycle
	switch c.DefaultQuery("kind", string(reportstore.KindCycle)) {
	case string(reportstore.KindCycle):
	case string(reportstore.KindSummary):
		kind = reportstore.KindSummary
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be cycle or summary"})
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	reports, err := s.store.ListRecent(sourceID, kind, limit)
	if err != nil {
		s.logger.Error("report listing failed", "source", sourceID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report listing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": sourceID, "reports": reports})
}

// knownSource guards the reports endpoint against path probing; only
// configured source IDs are served.
func (s *Server) knownSource(id string) bool {
	srcs, err := s.sources()
	if err != nil {
		return false
	}
	for _, src := range srcs {
		if src.ID == id {
			return true
		}
	}
	return false
}
