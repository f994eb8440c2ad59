// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway assembles the MCP gateway service.
//
// The gateway multiplexes HTTP clients onto pooled MCP server child
// processes speaking newline-delimited JSON-RPC over stdio. This package
// wires the pieces together: the process registry (mcp), the HTTP surface
// (handlers, routes, middleware), the server catalog, the audit trail, and
// the telemetry stack.
//
// # Enterprise Integration
//
// The gateway supports dependency injection via extensions.ServiceOptions,
// enabling deployments to substitute their own implementations of:
//   - AuthProvider: custom authentication (JWT, API keys)
//   - AuditLogger: compliance audit logging
//
// # Usage
//
// Open source (shared-secret auth, embedded audit store):
//
//	svc, err := gateway.New(config.FromEnv(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/mcpgate/pkg/extensions"
	"github.com/AleutianAI/mcpgate/services/gateway/audit"
	"github.com/AleutianAI/mcpgate/services/gateway/catalog"
	"github.com/AleutianAI/mcpgate/services/gateway/config"
	"github.com/AleutianAI/mcpgate/services/gateway/events"
	"github.com/AleutianAI/mcpgate/services/gateway/mcp"
	"github.com/AleutianAI/mcpgate/services/gateway/middleware"
	"github.com/AleutianAI/mcpgate/services/gateway/observability"
	"github.com/AleutianAI/mcpgate/services/gateway/routes"
	"github.com/AleutianAI/mcpgate/services/gateway/telemetry"
)

// Version is the gateway version, overridable at link time.
var Version = "1.0.0"

// shutdownTimeout bounds the drain of in-flight requests and child
// processes on exit.
const shutdownTimeout = 15 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the gateway service.
//
// Run() blocks and should only be called once per instance; Shutdown may be
// called from another goroutine to stop it.
type Service interface {
	// Run starts the HTTP server and blocks until Shutdown or error.
	Run() error

	// Shutdown stops the HTTP server, terminates all child processes, and
	// releases resources.
	Shutdown(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Service Implementation
// =============================================================================

type service struct {
	cfg     config.Config
	opts    extensions.ServiceOptions
	router  *gin.Engine
	server  *http.Server
	manager *mcp.Manager
	catalog *catalog.Catalog
	watcher *catalog.Watcher
	emitter *events.Emitter
	influx  *events.InfluxSink

	telemetryShutdown func(context.Context) error
}

// New assembles a gateway from configuration.
//
// Description:
//
//	Initializes telemetry, the lifecycle event emitter (plus the optional
//	Influx sink), the server catalog (with hot reload when file-backed),
//	the audit store, the auth provider, and the process registry, then
//	builds the route tree. Pass nil opts for the defaults derived from
//	cfg: shared-secret auth when MCPGATE_AUTH_TOKEN is set, BadgerDB audit
//	when MCPGATE_AUDIT_PATH is set, no-ops otherwise.
//
// Outputs:
//
//	Service - Ready to Run().
//	error - Non-nil when a hard dependency fails to initialize.
func New(cfg config.Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{cfg: cfg}

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.ServiceVersion = Version
	telemetryShutdown, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	s.telemetryShutdown = telemetryShutdown

	if opts != nil {
		s.opts = *opts
	} else {
		s.opts, err = s.defaultOptions()
		if err != nil {
			s.cleanup()
			return nil, err
		}
	}

	s.emitter = events.NewEmitter()
	if cfg.InfluxURL != "" {
		s.influx = events.NewInfluxSink(s.emitter, events.InfluxSinkConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		})
		slog.Info("lifecycle events mirrored to InfluxDB", "url", cfg.InfluxURL)
	}

	if err := s.initCatalog(); err != nil {
		s.cleanup()
		return nil, err
	}

	s.manager = mcp.NewManager(mcp.Config{
		HandshakeTimeout:  cfg.HandshakeTimeout,
		SweepInterval:     cfg.SweepInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		DefaultTTL:        cfg.DefaultTTL,
	}, s.emitter)
	if err := s.manager.Start(); err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()
	return s, nil
}

// defaultOptions derives the open source extension set from configuration.
func (s *service) defaultOptions() (extensions.ServiceOptions, error) {
	opts := extensions.DefaultOptions()

	if s.cfg.AuthToken != "" {
		opts = opts.WithAuth(extensions.NewSharedSecretProvider(s.cfg.AuthToken))
		slog.Info("shared-secret authentication enabled")
	} else {
		slog.Warn("authentication disabled; set MCPGATE_AUTH_TOKEN for shared-secret auth")
	}

	if s.cfg.AuditPath != "" {
		auditor, err := audit.NewBadgerAuditor(s.cfg.AuditPath)
		if err != nil {
			return opts, fmt.Errorf("open audit store: %w", err)
		}
		opts = opts.WithAudit(auditor)
		slog.Info("audit trail enabled", "path", s.cfg.AuditPath)
	}

	return opts, nil
}

// initCatalog loads the server catalog and starts the file watcher when a
// catalog path is configured.
func (s *service) initCatalog() error {
	var err error
	s.catalog, err = catalog.Load(s.cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if s.cfg.CatalogPath != "" {
		s.watcher, err = catalog.NewWatcher(s.catalog)
		if err != nil {
			slog.Warn("catalog hot reload unavailable", "error", err)
		} else {
			s.watcher.Start(context.Background())
		}
	}
	return nil
}

// initRouter builds the Gin engine and registers the route tree.
func (s *service) initRouter() {
	s.router = gin.New()
	s.router.Use(gin.Recovery())

	routes.SetupRoutes(s.router, routes.Dependencies{
		Manager: s.manager,
		Catalog: s.catalog,
		Options: s.opts,
		Limiter: middleware.NewRateLimiter(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst),
		Metrics: observability.InitMetrics(),
		Version: Version,
	})
}

// Run starts the HTTP server and blocks until Shutdown or listen failure.
func (s *service) Run() error {
	s.server = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway listening", "port", s.cfg.Port, "version", Version)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server, then tears down child processes and the
// remaining resources. Safe to call once, from any goroutine.
func (s *service) Shutdown(ctx context.Context) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}

	var errs []error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	s.manager.Shutdown(ctx)
	s.cleanup()

	return errors.Join(errs...)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// cleanup releases everything that is not the HTTP server or the registry.
func (s *service) cleanup() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.influx != nil {
		s.influx.Close(s.emitter)
	}
	if s.opts.AuditLogger != nil {
		if err := s.opts.AuditLogger.Close(); err != nil {
			slog.Warn("audit store close error", "error", err)
		}
	}
	if s.telemetryShutdown != nil {
		if err := s.telemetryShutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}
}
