// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gateway's HTTP endpoints.
//
// Handlers are thin: request binding and validation happen here, then the
// call delegates to the process registry. Handlers never reach into registry
// internals, and validation errors never reach the registry.
package handlers

import (
	"github.com/AleutianAI/mcpgate/services/gateway/mcp"
)

// ConfigRequest mirrors mcp.ServerConfig for request binding.
type ConfigRequest struct {
	Command string            `json:"command" binding:"required"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// EnsureRequest is the body of POST /v1/servers.
//
// Either Config or Catalog must be supplied; Catalog names a predefined
// entry from the server catalog.
type EnsureRequest struct {
	ClientID   string         `json:"clientId" binding:"required"`
	ServerName string         `json:"serverName" binding:"required"`
	Config     *ConfigRequest `json:"config"`
	Catalog    string         `json:"catalog"`
	TTLSeconds int            `json:"ttlSeconds" binding:"gte=0,lte=86400"`
}

// EnsureResponse reports the started (or reused) process.
type EnsureResponse struct {
	Key               string `json:"key"`
	PID               int    `json:"pid"`
	Initialized       bool   `json:"initialized"`
	WasAlreadyRunning bool   `json:"wasAlreadyRunning"`
}

// CallToolRequest is the body of POST .../tools/call.
//
// Either Name (with optional Arguments) or Raw must be supplied; Raw is a
// pre-built JSON-RPC request line sent verbatim.
type CallToolRequest struct {
	Name           string                 `json:"name"`
	Arguments      map[string]interface{} `json:"arguments"`
	Raw            string                 `json:"raw"`
	TimeoutSeconds int                    `json:"timeoutSeconds" binding:"gte=0,lte=300"`
}

// CallToolResponse wraps the correlated call outcome.
type CallToolResponse struct {
	RawOutput   string        `json:"rawOutput"`
	ErrorOutput string        `json:"errorOutput"`
	Response    *mcp.Response `json:"response,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
