// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mcp

import (
	"encoding/json"
	"sync/atomic"
)

// JSONRPCVersion is the JSON-RPC version used by the MCP stdio transport.
const JSONRPCVersion = "2.0"

// ProtocolVersion is the MCP protocol version declared during initialize.
const ProtocolVersion = "2024-11-05"

// MCP method names.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
	MethodPing        = "ping"
)

// requestID is the process-wide monotonically increasing JSON-RPC id counter,
// shared across initialize, ping, and ad hoc calls so no two in-flight
// requests collide on id, even against different target processes.
var requestID atomic.Int64

// nextRequestID returns a fresh unique JSON-RPC id.
func nextRequestID() int64 {
	return requestID.Add(1)
}

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// Request represents a JSON-RPC request.
type Request struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier. Omit for notifications.
	ID int64 `json:"id,omitempty"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params interface{} `json:"params,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier this response corresponds to.
	ID int64 `json:"id"`

	// Result contains the method result (mutually exclusive with Error).
	Result json.RawMessage `json:"result,omitempty"`

	// Error contains error information (mutually exclusive with Result).
	Error *RPCError `json:"error,omitempty"`
}

// Notification represents a JSON-RPC notification (no ID, no response).
type Notification struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params interface{} `json:"params,omitempty"`
}

// ClientInfo identifies this gateway to the MCP server during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeParams is the params object of the initialize request.
type initializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      ClientInfo             `json:"clientInfo"`
}

// declaredCapabilities is the fixed capability set the gateway announces.
// The gateway consumes tools only; roots/sampling are not offered.
func declaredCapabilities() map[string]interface{} {
	return map[string]interface{}{
		"tools": map[string]interface{}{},
	}
}

// encodeInitialize builds the one-line initialize request.
func encodeInitialize(id int64, info ClientInfo) ([]byte, error) {
	return json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  MethodInitialize,
		Params: initializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    declaredCapabilities(),
			ClientInfo:      info,
		},
	})
}

// encodeInitialized builds the initialized notification (no id, no response).
func encodeInitialized() ([]byte, error) {
	return json.Marshal(Notification{
		JSONRPC: JSONRPCVersion,
		Method:  MethodInitialized,
	})
}

// encodePing builds a one-line ping request with a fresh id.
func encodePing(id int64) ([]byte, error) {
	return json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  MethodPing,
		Params:  map[string]interface{}{},
	})
}

// encodeToolsList builds the fixed tools/list request.
func encodeToolsList(id int64) ([]byte, error) {
	return json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  MethodToolsList,
	})
}

// encodeToolsCall builds a tools/call request for the named tool.
func encodeToolsCall(id int64, tool string, arguments map[string]interface{}) ([]byte, error) {
	if arguments == nil {
		arguments = map[string]interface{}{}
	}
	return json.Marshal(Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  MethodToolsCall,
		Params: map[string]interface{}{
			"name":      tool,
			"arguments": arguments,
		},
	})
}
