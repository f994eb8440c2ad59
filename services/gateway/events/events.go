// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events broadcasts MCP server lifecycle events to subscribers.
//
// The process registry emits one event per lifecycle transition; the HTTP
// layer, the audit trail, and the optional Influx sink subscribe at startup.
// The emitter keeps a bounded replay buffer so late subscribers (for example
// a websocket client connecting after boot) can see recent history.
package events

import "time"

// Type identifies a lifecycle event kind.
type Type string

// Lifecycle event types emitted by the registry.
const (
	// TypeInitialized fires when the initialize handshake completes.
	TypeInitialized Type = "process-initialized"

	// TypeInitializationFailed fires when the handshake times out or the
	// process dies before responding.
	TypeInitializationFailed Type = "process-initialization-failed"

	// TypeExited fires when a process exits on its own or is terminated.
	TypeExited Type = "process-exited"

	// TypeSpawnError fires when the OS refuses to start a process.
	TypeSpawnError Type = "process-spawn-error"

	// TypeIdleExpired fires when the idle sweep reclaims an entry.
	TypeIdleExpired Type = "process-timed-out-idle"
)

// Event is one lifecycle notification.
type Event struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type is the lifecycle transition kind.
	Type Type `json:"type"`

	// Key is the composite key of the affected entry.
	Key string `json:"key"`

	// ClientID and ServerName are the key components.
	ClientID   string `json:"clientId"`
	ServerName string `json:"serverName"`

	// PID is the OS process id, when known.
	PID int `json:"pid,omitempty"`

	// Detail carries a human-readable description (exit error, timeout).
	Detail string `json:"detail,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}
