// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/mcpgate/pkg/extensions"
	"github.com/AleutianAI/mcpgate/services/gateway/catalog"
	"github.com/AleutianAI/mcpgate/services/gateway/handlers"
	"github.com/AleutianAI/mcpgate/services/gateway/mcp"
	"github.com/AleutianAI/mcpgate/services/gateway/middleware"
	"github.com/AleutianAI/mcpgate/services/gateway/observability"
)

// Dependencies carries everything the route tree needs.
type Dependencies struct {
	Manager *mcp.Manager
	Catalog *catalog.Catalog
	Options extensions.ServiceOptions
	Limiter *middleware.RateLimiter
	Metrics *observability.HTTPMetrics
	Version string
}

// SetupRoutes wires the full HTTP surface onto the router.
//
// /health and /metrics stay outside the authenticated group so probes and
// scrapers need no token; everything under /v1 passes auth and the
// per-client rate limit.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.Use(otelgin.Middleware("mcp-gateway"))
	router.Use(middleware.SecurityHeaders())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}

	router.GET("/health", handlers.GatewayHealth(deps.Manager, deps.Version))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Options.AuthProvider))
	if deps.Limiter != nil {
		v1.Use(deps.Limiter.Middleware())
	}
	{
		v1.POST("/servers", handlers.EnsureServer(deps.Manager, deps.Catalog))
		v1.GET("/servers", handlers.ListServers(deps.Manager))
		v1.GET("/servers/all", handlers.ListAllServers(deps.Manager))

		server := v1.Group("/servers/:clientId/:serverName")
		{
			server.GET("/health", handlers.ServerHealth(deps.Manager))
			server.DELETE("", handlers.KillServer(deps.Manager))
			server.GET("/tools", handlers.ListServerTools(deps.Manager, deps.Options.AuditLogger))
			server.POST("/tools/call", handlers.CallServerTool(deps.Manager, deps.Options.AuditLogger))
		}

		v1.GET("/events/stream", handlers.StreamEvents(deps.Manager.Emitter()))
		v1.GET("/audit/recent", handlers.RecentAudit(deps.Options.AuditLogger))
		v1.GET("/catalog", handlers.ListCatalog(deps.Catalog))
	}
}
