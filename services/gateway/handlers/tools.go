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
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/mcpgate/pkg/extensions"
	"github.com/AleutianAI/mcpgate/services/gateway/mcp"
	"github.com/AleutianAI/mcpgate/services/gateway/middleware"
)

// defaultToolTimeout applies when the request supplies no window.
const defaultToolTimeout = 10 * time.Second

// ListServerTools handles GET /v1/servers/:clientId/:serverName/tools via a
// correlated tools/list round trip.
func ListServerTools(manager *mcp.Manager, auditor extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, serverName, ok := pathKey(c)
		if !ok {
			return
		}
		entry, ok := usableEntry(c, manager, clientID, serverName)
		if !ok {
			return
		}

		started := time.Now()
		result, err := manager.ListTools(c.Request.Context(), entry.Process, defaultToolTimeout)
		logAudit(c, auditor, entry.Key, "tools/list", started, result, err)

		if err != nil {
			writeCallError(c, result, err)
			return
		}
		c.JSON(http.StatusOK, toResponse(result))
	}
}

// CallServerTool handles POST /v1/servers/:clientId/:serverName/tools/call.
func CallServerTool(manager *mcp.Manager, auditor extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID, serverName, ok := pathKey(c)
		if !ok {
			return
		}

		var req CallToolRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		if req.Name == "" && req.Raw == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "either name or raw is required"})
			return
		}

		entry, ok := usableEntry(c, manager, clientID, serverName)
		if !ok {
			return
		}

		timeout := defaultToolTimeout
		if req.TimeoutSeconds > 0 {
			timeout = time.Duration(req.TimeoutSeconds) * time.Second
		}

		input := req.Name
		label := req.Name
		if req.Raw != "" {
			input = req.Raw
			label = "raw"
		}

		started := time.Now()
		result, err := manager.CallTool(c.Request.Context(), entry.Process, input, req.Arguments, timeout)
		logAudit(c, auditor, entry.Key, label, started, result, err)

		if err != nil {
			writeCallError(c, result, err)
			return
		}
		c.JSON(http.StatusOK, toResponse(result))
	}
}

// usableEntry fetches the entry and enforces the alive+initialized gate,
// writing the distinguishing error response itself.
func usableEntry(c *gin.Context, manager *mcp.Manager, clientID, serverName string) (*mcp.Entry, bool) {
	entry, found := manager.Get(clientID, serverName)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: mcp.ErrNotFound.Error()})
		return nil, false
	}
	if !entry.Usable() {
		reason := mcp.ErrNotInitialized.Error()
		if !entry.Process.Alive() {
			reason = "process is dead; re-ensure to restart"
		}
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: reason})
		return nil, false
	}
	return entry, true
}

// writeCallError maps correlated-call failures onto distinct statuses.
func writeCallError(c *gin.Context, result *mcp.CallResult, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, mcp.ErrCommunication) {
		status = http.StatusServiceUnavailable
	}

	body := gin.H{"error": err.Error()}
	if result != nil {
		body["rawOutput"] = result.RawOutput
		body["errorOutput"] = result.ErrorOutput
	}
	c.JSON(status, body)
}

// toResponse converts a call result to the wire shape.
func toResponse(result *mcp.CallResult) CallToolResponse {
	return CallToolResponse{
		RawOutput:   result.RawOutput,
		ErrorOutput: result.ErrorOutput,
		Response:    result.Response,
	}
}

// logAudit records one invocation; audit failures never affect the request.
func logAudit(c *gin.Context, auditor extensions.AuditLogger, key, tool string, started time.Time, result *mcp.CallResult, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, mcp.ErrProcessExited):
		outcome = "process-exited"
	case err != nil:
		outcome = "error"
	case result != nil && result.Response == nil:
		outcome = "timeout"
	}

	userID := ""
	if info := middleware.GetAuthInfo(c); info != nil {
		userID = info.UserID
	}

	_ = auditor.Log(context.WithoutCancel(c.Request.Context()), extensions.AuditRecord{
		Key:        key,
		Tool:       tool,
		Outcome:    outcome,
		DurationMS: time.Since(started).Milliseconds(),
		UserID:     userID,
	})
}
