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
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/mcpgate/services/gateway/events"
)

// heartbeatSkipFraction: entries pinged more recently than this fraction of
// the heartbeat interval are skipped, avoiding redundant pings when the
// interval is shortened.
const heartbeatSkipFraction = 0.8

// runIdleSweep periodically reclaims entries idle past their TTL.
func (m *Manager) runIdleSweep() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

// sweepIdle terminates and evicts every entry whose idle duration exceeds
// its own TTL. Acts on a snapshot; an entry disappearing mid-sweep is a
// normal outcome, and one entry's failure never aborts the rest.
func (m *Manager) sweepIdle() {
	now := time.Now()
	for _, entry := range m.snapshot() {
		idle := now.Sub(entry.LastAccessedAt())
		if idle <= entry.TTL {
			continue
		}

		if !m.remove(entry.Key, entry) {
			continue // replaced or already evicted
		}

		slog.Info("evicting idle mcp server",
			slog.String("key", entry.Key),
			slog.Int("pid", entry.Process.PID()),
			slog.Duration("idle", idle),
			slog.Duration("ttl", entry.TTL),
		)
		entry.Process.Terminate(context.Background())
		recordEviction(context.Background(), "expired")

		m.emitter.Emit(events.Event{
			Type:       events.TypeIdleExpired,
			Key:        entry.Key,
			ClientID:   entry.ClientID,
			ServerName: entry.ServerName,
			PID:        entry.Process.PID(),
			Detail:     "idle " + idle.Truncate(time.Second).String(),
		})
	}
}

// runHeartbeatSweep periodically pings live entries so upstream servers do
// not disconnect idle sessions. Purely a liveness nudge; it gates nothing.
func (m *Manager) runHeartbeatSweep() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepHeartbeat()
		}
	}
}

// sweepHeartbeat pings every live, initialized entry not pinged recently and
// records the timestamp on success.
func (m *Manager) sweepHeartbeat() {
	skipWindow := time.Duration(float64(m.cfg.HeartbeatInterval) * heartbeatSkipFraction)
	now := time.Now()

	for _, entry := range m.snapshot() {
		if !entry.Usable() {
			continue
		}
		if last := entry.LastHeartbeatAt(); !last.IsZero() && now.Sub(last) < skipWindow {
			continue
		}

		ok := pingProcess(entry.Process)
		recordHeartbeat(context.Background(), ok)
		if ok {
			entry.markHeartbeat()
		} else {
			slog.Warn("heartbeat ping failed",
				slog.String("key", entry.Key),
				slog.Int("pid", entry.Process.PID()),
			)
		}
	}
}
