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
	"errors"
	"fmt"
)

// Sentinel errors for process lifecycle operations.
var (
	// ErrSpawnFailed indicates the OS refused to create the process or
	// assigned it no pid. Fatal to the ensure call; not retried.
	ErrSpawnFailed = errors.New("mcp server spawn failed")

	// ErrHandshakeTimeout indicates the initialize handshake produced no
	// matching response within the timeout. The process is kept alive.
	ErrHandshakeTimeout = errors.New("mcp initialize handshake timed out")

	// ErrCommunication indicates a write to a dead or closed stdin stream.
	// The process should be presumed dead by the next health check.
	ErrCommunication = errors.New("mcp server communication error")

	// ErrProcessExited indicates the process terminated while an operation
	// was awaiting its response.
	ErrProcessExited = errors.New("mcp server process exited")

	// ErrNotFound indicates no entry exists for the composite key.
	ErrNotFound = errors.New("mcp server not found")

	// ErrNotInitialized indicates the entry exists but the handshake has
	// not completed.
	ErrNotInitialized = errors.New("mcp server not initialized")

	// ErrAlreadyStarted indicates the manager's background sweeps are
	// already running.
	ErrAlreadyStarted = errors.New("mcp manager already started")
)

// RPCError represents an error member returned by a server via JSON-RPC.
//
// Codes follow the JSON-RPC 2.0 spec:
//   - -32700: Parse error
//   - -32600: Invalid request
//   - -32601: Method not found
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32099 to -32000: Server error (reserved)
type RPCError struct {
	// Code is the JSON-RPC error code.
	Code int `json:"code"`

	// Message is the error message from the server.
	Message string `json:"message"`

	// Data contains optional additional data about the error.
	Data interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound returns true if the method is not supported by the server.
func (e *RPCError) IsMethodNotFound() bool {
	return e.Code == -32601
}
