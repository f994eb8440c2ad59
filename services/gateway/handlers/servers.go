// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/mcpgate/pkg/validation"
	"github.com/AleutianAI/mcpgate/services/gateway/catalog"
	"github.com/AleutianAI/mcpgate/services/gateway/mcp"
)

// EnsureServer handles POST /v1/servers: start a process for the key, or
// reuse the running one when its config fingerprint matches.
func EnsureServer(manager *mcp.Manager, cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EnsureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		if err := validateKeyParts(req.ClientID, req.ServerName); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		var cfg mcp.ServerConfig
		ttl := time.Duration(req.TTLSeconds) * time.Second

		switch {
		case req.Catalog != "":
			if err := validation.Identifier("catalog", req.Catalog); err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
				return
			}
			def, err := cat.Lookup(req.Catalog)
			if err != nil {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
				return
			}
			cfg = def.Config()
			if ttl == 0 {
				ttl = def.TTL()
			}

		case req.Config != nil && req.Config.Command != "":
			cfg = mcp.ServerConfig{
				Command: req.Config.Command,
				Args:    req.Config.Args,
				Env:     req.Config.Env,
			}

		default:
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "either config.command or catalog is required",
			})
			return
		}

		result, err := manager.Ensure(c.Request.Context(), req.ClientID, req.ServerName, cfg, ttl)
		if err != nil {
			slog.Error("ensure failed",
				slog.String("clientId", req.ClientID),
				slog.String("serverName", req.ServerName),
				slog.Any("error", err),
			)
			c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, EnsureResponse{
			Key:               result.Entry.Key,
			PID:               result.Entry.Process.PID(),
			Initialized:       result.Entry.Initialized(),
			WasAlreadyRunning: result.WasAlreadyRunning,
		})
	}
}

// ListServers handles GET /v1/servers?clientId=: redacted summaries for one
// client.
func ListServers(manager *mcp.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.Query("clientId")
		if err := validation.Identifier("clientId", clientID); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		summaries := manager.ListForClient(clientID)
		if summaries == nil {
			summaries = []mcp.EntrySummary{}
		}
		c.JSON(http.StatusOK, gin.H{"servers": summaries})
	}
}

// ListAllServers handles GET /v1/servers/all: redacted summaries across all
// clients.
func ListAllServers(manager *mcp.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"servers": manager.ListAll()})
	}
}

// ServerHealth handles GET /v1/servers/:clientId/:serverName/health.
//
// The reason strings stay distinguishable so clients can react precisely:
// not-found → start first, not-initialized → wait and retry, killed/zombie
// → restart.
func ServerHealth(manager *mcp.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, serverName, ok := pathKey(c)
		if !ok {
			return
		}

		status := manager.Health(clientID, serverName)
		httpStatus := http.StatusOK
		switch status.Reason {
		case mcp.ReasonNotFound:
			httpStatus = http.StatusNotFound
		case mcp.ReasonKilled, mcp.ReasonZombie:
			httpStatus = http.StatusConflict
		case mcp.ReasonNotInitialized:
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, status)
	}
}

// KillServer handles DELETE /v1/servers/:clientId/:serverName: force kill
// regardless of idle state.
func KillServer(manager *mcp.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, serverName, ok := pathKey(c)
		if !ok {
			return
		}

		if !manager.Kill(c.Request.Context(), clientID, serverName) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: mcp.ErrNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"killed": true})
	}
}

// pathKey binds and validates the :clientId/:serverName path segments,
// writing the 400 itself on failure.
func pathKey(c *gin.Context) (clientID, serverName string, ok bool) {
	clientID = c.Param("clientId")
	serverName = c.Param("serverName")
	if err := validateKeyParts(clientID, serverName); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return "", "", false
	}
	return clientID, serverName, true
}

// validateKeyParts guards both key components.
func validateKeyParts(clientID, serverName string) error {
	return errors.Join(
		validation.Identifier("clientId", clientID),
		validation.Identifier("serverName", serverName),
	)
}
