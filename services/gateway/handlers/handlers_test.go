// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/mcpgate/services/gateway/audit"
	"github.com/AleutianAI/mcpgate/services/gateway/catalog"
	"github.com/AleutianAI/mcpgate/services/gateway/events"
	"github.com/AleutianAI/mcpgate/services/gateway/mcp"
)

// echoServerScript answers every id-bearing request with a matching result,
// standing in for a real MCP server.
const echoServerScript = `while read line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9][0-9]*\).*/\1/p')
  if [ -n "$id" ]; then
    printf '{"jsonrpc":"2.0","id":%s,"result":{"protocolVersion":"2024-11-05","tools":[{"name":"echo"}]}}\n' "$id"
  fi
done`

type fixture struct {
	router  *gin.Engine
	manager *mcp.Manager
	auditor *audit.BadgerAuditor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := mcp.NewManager(mcp.Config{HandshakeTimeout: 300 * time.Millisecond}, events.NewEmitter())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		manager.Shutdown(ctx)
	})

	catalogPath := filepath.Join(t.TempDir(), "catalog.yaml")
	catalogYAML := fmt.Sprintf(`
servers:
  - name: echo
    description: Scripted echo server
    command: sh
    args: ["-c", %q]
`, echoServerScript)
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogYAML), 0o644))
	cat, err := catalog.Load(catalogPath)
	require.NoError(t, err)

	auditor, err := audit.NewInMemoryAuditor()
	require.NoError(t, err)
	t.Cleanup(func() { auditor.Close() })

	r := gin.New()
	r.GET("/health", GatewayHealth(manager, "test"))
	v1 := r.Group("/v1")
	{
		v1.POST("/servers", EnsureServer(manager, cat))
		v1.GET("/servers", ListServers(manager))
		v1.GET("/servers/all", ListAllServers(manager))
		v1.GET("/servers/:clientId/:serverName/health", ServerHealth(manager))
		v1.DELETE("/servers/:clientId/:serverName", KillServer(manager))
		v1.GET("/servers/:clientId/:serverName/tools", ListServerTools(manager, auditor))
		v1.POST("/servers/:clientId/:serverName/tools/call", CallServerTool(manager, auditor))
		v1.GET("/audit/recent", RecentAudit(auditor))
		v1.GET("/catalog", ListCatalog(cat))
	}

	return &fixture{router: r, manager: manager, auditor: auditor}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) ensureEcho(t *testing.T, clientID string) {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/servers", gin.H{
		"clientId":   clientID,
		"serverName": "echo",
		"catalog":    "echo",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

// =============================================================================
// ENSURE
// =============================================================================

func TestEnsureFromCatalog(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/servers", gin.H{
		"clientId":   "client-a",
		"serverName": "echo",
		"catalog":    "echo",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp EnsureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "client-a:echo", resp.Key)
	assert.True(t, resp.Initialized)
	assert.False(t, resp.WasAlreadyRunning)
	assert.Greater(t, resp.PID, 0)

	// Same config again: reuse.
	w = f.do(t, http.MethodPost, "/v1/servers", gin.H{
		"clientId":   "client-a",
		"serverName": "echo",
		"catalog":    "echo",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.WasAlreadyRunning)
}

func TestEnsureWithInlineConfig(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/servers", gin.H{
		"clientId":   "client-a",
		"serverName": "inline",
		"config": gin.H{
			"command": "sh",
			"args":    []string{"-c", echoServerScript},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp EnsureResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Initialized)
}

func TestEnsureValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		body       gin.H
		wantStatus int
	}{
		{
			name:       "missing clientId",
			body:       gin.H{"serverName": "echo", "catalog": "echo"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "colon in clientId",
			body:       gin.H{"clientId": "a:b", "serverName": "echo", "catalog": "echo"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "neither config nor catalog",
			body:       gin.H{"clientId": "client-a", "serverName": "echo"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "config without command",
			body:       gin.H{"clientId": "client-a", "serverName": "echo", "config": gin.H{"args": []string{"x"}}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown catalog name",
			body:       gin.H{"clientId": "client-a", "serverName": "echo", "catalog": "absent"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "ttl out of range",
			body:       gin.H{"clientId": "client-a", "serverName": "echo", "catalog": "echo", "ttlSeconds": 999999},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/v1/servers", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

// =============================================================================
// LISTING & HEALTH
// =============================================================================

func TestListServersScopedToClient(t *testing.T) {
	f := newFixture(t)
	f.ensureEcho(t, "client-a")
	f.ensureEcho(t, "client-b")

	w := f.do(t, http.MethodGet, "/v1/servers?clientId=client-a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Servers []mcp.EntrySummary `json:"servers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Servers, 1)
	assert.Equal(t, "client-a", resp.Servers[0].ClientID)

	w = f.do(t, http.MethodGet, "/v1/servers/all", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Servers, 2)
}

func TestListServersRequiresClientID(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/v1/servers", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServerHealthStatusMapping(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/servers/client-a/echo/health", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	f.ensureEcho(t, "client-a")
	w = f.do(t, http.MethodGet, "/v1/servers/client-a/echo/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy":true`)

	// A server that never answers the handshake reports 503.
	w = f.do(t, http.MethodPost, "/v1/servers", gin.H{
		"clientId":   "client-a",
		"serverName": "mute",
		"config":     gin.H{"command": "sleep", "args": []string{"30"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/v1/servers/client-a/mute/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not-initialized")
}

func TestKillServer(t *testing.T) {
	f := newFixture(t)
	f.ensureEcho(t, "client-a")

	w := f.do(t, http.MethodDelete, "/v1/servers/client-a/echo", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// The key reports killed (409) until the exit is reaped, then 404.
	// Anything else in between is a defect.
	deadline := time.Now().Add(10 * time.Second)
	for {
		w = f.do(t, http.MethodGet, "/v1/servers/client-a/echo/health", nil)
		if w.Code == http.StatusNotFound {
			break
		}
		require.Equal(t, http.StatusConflict, w.Code)
		require.Contains(t, w.Body.String(), "killed")
		if time.Now().After(deadline) {
			t.Fatal("killed server never transitioned to not-found")
		}
		time.Sleep(20 * time.Millisecond)
	}

	w = f.do(t, http.MethodDelete, "/v1/servers/client-a/echo", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// TOOLS
// =============================================================================

func TestListServerTools(t *testing.T) {
	f := newFixture(t)
	f.ensureEcho(t, "client-a")

	w := f.do(t, http.MethodGet, "/v1/servers/client-a/echo/tools", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp CallToolResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Response)
	assert.Contains(t, string(resp.Response.Result), "echo")
}

func TestCallServerTool(t *testing.T) {
	f := newFixture(t)
	f.ensureEcho(t, "client-a")

	w := f.do(t, http.MethodPost, "/v1/servers/client-a/echo/tools/call", gin.H{
		"name":      "echo",
		"arguments": gin.H{"text": "hello"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp CallToolResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Response)
	assert.NotNil(t, resp.Response.Result)
}

func TestCallServerToolValidation(t *testing.T) {
	f := newFixture(t)
	f.ensureEcho(t, "client-a")

	// Neither name nor raw.
	w := f.do(t, http.MethodPost, "/v1/servers/client-a/echo/tools/call", gin.H{
		"arguments": gin.H{"x": 1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown server.
	w = f.do(t, http.MethodPost, "/v1/servers/client-a/absent/tools/call", gin.H{
		"name": "echo",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallToolRejectsUninitializedServer(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/servers", gin.H{
		"clientId":   "client-a",
		"serverName": "mute",
		"config":     gin.H{"command": "sleep", "args": []string{"30"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/v1/servers/client-a/mute/tools/call", gin.H{"name": "echo"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// =============================================================================
// AUDIT & CATALOG & HEALTH
// =============================================================================

func TestAuditTrailRecordsInvocations(t *testing.T) {
	f := newFixture(t)
	f.ensureEcho(t, "client-a")

	w := f.do(t, http.MethodPost, "/v1/servers/client-a/echo/tools/call", gin.H{"name": "echo"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/v1/audit/recent?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Records []struct {
			Key     string `json:"key"`
			Tool    string `json:"tool"`
			Outcome string `json:"outcome"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Records)
	assert.Equal(t, "client-a:echo", resp.Records[0].Key)
	assert.Equal(t, "echo", resp.Records[0].Tool)
	assert.Equal(t, "success", resp.Records[0].Outcome)
}

func TestRecentAuditRejectsBadLimit(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/v1/audit/recent?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/v1/audit/recent?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCatalogEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"echo"`)
}

func TestGatewayHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	f.ensureEcho(t, "client-a")

	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Servers int    `json:"servers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 1, resp.Servers)
}
