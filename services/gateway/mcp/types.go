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
	"sort"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// SERVER CONFIG
// =============================================================================

// ServerConfig is the launch specification for an MCP server process.
// Immutable once the process is spawned.
type ServerConfig struct {
	// Command is the program to execute. Passed literally, never through a
	// shell.
	Command string `json:"command"`

	// Args are the program arguments, passed literally.
	Args []string `json:"args,omitempty"`

	// Env contains environment overrides merged over the sanitized host
	// allowlist.
	Env map[string]string `json:"env,omitempty"`
}

// Fingerprint returns a stable canonical serialization of the config.
//
// Fingerprint equality is the sole criterion for deciding whether an ensure
// request reuses a live entry or supersedes it with a fresh spawn. Env keys
// are sorted so map iteration order cannot produce spurious mismatches.
func (c ServerConfig) Fingerprint() string {
	var b strings.Builder
	b.WriteString(c.Command)
	for _, a := range c.Args {
		b.WriteByte('\x00')
		b.WriteString(a)
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('\x01')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(c.Env[k])
	}
	return b.String()
}

// =============================================================================
// REGISTRY ENTRY
// =============================================================================

// Entry is one managed MCP server process, keyed by clientID + ":" + serverName.
//
// Thread Safety: all mutable fields are guarded by mu. The Process handle is
// exclusively owned by the entry and safe for concurrent use on its own.
type Entry struct {
	// Key is the composite identity, clientID + ":" + serverName. Immutable.
	Key string

	// ClientID and ServerName are the key components, kept for reporting.
	ClientID   string
	ServerName string

	// Process is the exclusively owned OS process handle.
	Process *Process

	// Config is the launch specification. Immutable after spawn.
	Config ServerConfig

	// fingerprint caches Config.Fingerprint().
	fingerprint string

	// TTL is the per-entry idle time-to-live.
	TTL time.Duration

	mu              sync.Mutex
	initialized     bool
	killed          bool
	lastAccessedAt  time.Time
	lastHeartbeatAt time.Time
}

// Initialized reports whether the initialize handshake has completed.
func (e *Entry) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// markInitialized records handshake success.
func (e *Entry) markInitialized() {
	e.mu.Lock()
	e.initialized = true
	e.mu.Unlock()
}

// Killed reports whether an explicit kill was requested for the entry. The
// entry stays registered, flagged killed, until the process exit is reaped.
func (e *Entry) Killed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killed
}

// markKilled flags the entry as explicitly killed.
func (e *Entry) markKilled() {
	e.mu.Lock()
	e.killed = true
	e.mu.Unlock()
}

// Touch updates the last-accessed timestamp.
func (e *Entry) Touch() {
	e.mu.Lock()
	e.lastAccessedAt = time.Now()
	e.mu.Unlock()
}

// LastAccessedAt returns when the entry was last used.
func (e *Entry) LastAccessedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAccessedAt
}

// markHeartbeat records a successful keep-alive ping.
func (e *Entry) markHeartbeat() {
	e.mu.Lock()
	e.lastHeartbeatAt = time.Now()
	e.mu.Unlock()
}

// LastHeartbeatAt returns the time of the last successful ping, or the zero
// time if no ping has succeeded yet.
func (e *Entry) LastHeartbeatAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastHeartbeatAt
}

// Usable reports whether the entry may be handed to a consumer: the process
// must be alive, not flagged killed, and the handshake must have completed.
func (e *Entry) Usable() bool {
	return e.Process != nil && e.Process.Alive() && !e.Killed() && e.Initialized()
}

// Summary returns a reporting view of the entry with sensitive config values
// redacted.
func (e *Entry) Summary() EntrySummary {
	e.mu.Lock()
	initialized := e.initialized
	lastAccessed := e.lastAccessedAt
	lastHeartbeat := e.lastHeartbeatAt
	e.mu.Unlock()

	return EntrySummary{
		Key:             e.Key,
		ClientID:        e.ClientID,
		ServerName:      e.ServerName,
		PID:             e.Process.PID(),
		Alive:           e.Process.Alive(),
		Initialized:     initialized,
		Config:          RedactConfig(e.Config),
		TTLSeconds:      int64(e.TTL / time.Second),
		LastAccessedAt:  lastAccessed,
		LastHeartbeatAt: lastHeartbeat,
	}
}

// EntrySummary is the redacted reporting view of an Entry.
type EntrySummary struct {
	Key             string       `json:"key"`
	ClientID        string       `json:"clientId"`
	ServerName      string       `json:"serverName"`
	PID             int          `json:"pid"`
	Alive           bool         `json:"alive"`
	Initialized     bool         `json:"initialized"`
	Config          ServerConfig `json:"config"`
	TTLSeconds      int64        `json:"ttlSeconds"`
	LastAccessedAt  time.Time    `json:"lastAccessedAt"`
	LastHeartbeatAt time.Time    `json:"lastHeartbeatAt,omitempty"`
}

// EnsureResult is returned by Manager.Ensure.
type EnsureResult struct {
	// Entry is the live registry entry for the key. Present even when the
	// handshake failed; check Entry.Initialized.
	Entry *Entry

	// WasAlreadyRunning is true when the call reused a live entry or joined
	// an in-flight startup instead of triggering the spawn itself.
	WasAlreadyRunning bool
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthReason classifies why an entry is not healthy.
type HealthReason string

// Health reasons. Distinguishable so the routing layer can produce distinct,
// actionable responses.
const (
	ReasonNotFound       HealthReason = "not-found"
	ReasonKilled         HealthReason = "killed"
	ReasonNotInitialized HealthReason = "not-initialized"
	ReasonZombie         HealthReason = "zombie"
)

// HealthStatus is the result of a health probe for one key.
type HealthStatus struct {
	Healthy bool         `json:"healthy"`
	Reason  HealthReason `json:"reason,omitempty"`
}

// =============================================================================
// CALL RESULTS
// =============================================================================

// CallResult is the outcome of one correlated request/response round trip.
type CallResult struct {
	// RawOutput is everything the process wrote to stdout during the window.
	RawOutput string `json:"rawOutput"`

	// ErrorOutput is everything the process wrote to stderr during the window.
	ErrorOutput string `json:"errorOutput"`

	// Response is the best-effort parsed JSON-RPC response, or nil when no
	// line in the window parsed (or matched the requested id).
	Response *Response `json:"response,omitempty"`
}

