// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcp manages pools of MCP server processes speaking newline-delimited
// JSON-RPC 2.0 over stdio.
//
// # Architecture
//
// The package is organized around four collaborating pieces:
//
//   - Process supervision (process.go): spawning an OS process with piped
//     stdio, a sanitized environment, and graceful-then-forced termination.
//   - Protocol handshake (protocol.go, handshake.go): the MCP
//     initialize/initialized exchange and best-effort keep-alive pings.
//   - Registry (manager.go, sweeps.go): the composite-key map of live
//     entries, concurrent-startup de-duplication, idle expiry, and
//     heartbeats.
//   - Correlation (correlate.go): ad hoc request/response round trips
//     (tools/list, tools/call) against a live process's streams.
//
// A process is identified by its composite key, clientID + ":" + serverName.
// At most one live process exists per key; configuration drift (detected by
// fingerprint comparison) supersedes the old process with a fresh spawn.
//
// # Lifecycle
//
// Per key: absent → starting → ready → (reused | superseded | expired |
// died) → absent. An entry is usable only when its process is alive AND the
// initialize handshake has completed. A handshake timeout keeps the process
// registered but uninitialized so a later request can retry against the
// still-running process; under sustained handshake failures this can
// accumulate unready processes until the idle sweep reclaims them.
//
// # Thread Safety
//
// The Manager is safe for concurrent use. Independent keys make progress in
// parallel; concurrent starts for the same key are collapsed into a single
// spawn attempt.
package mcp
