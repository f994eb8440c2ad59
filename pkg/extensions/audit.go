// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// AuditRecord captures one tool invocation for the audit trail.
type AuditRecord struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`

	// Timestamp is when the invocation completed (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Key is the composite key of the target server process.
	Key string `json:"key"`

	// Tool is the invoked tool name, or "tools/list" for listings.
	Tool string `json:"tool"`

	// Outcome is "success", "timeout", "error", or "process-exited".
	Outcome string `json:"outcome"`

	// DurationMS is the wall-clock invocation duration in milliseconds.
	DurationMS int64 `json:"durationMs"`

	// UserID identifies the authenticated caller.
	UserID string `json:"userId,omitempty"`
}

// AuditLogger records tool invocations.
//
// Implementations must tolerate high call rates; Log is invoked on the
// request path and should not block on slow storage.
type AuditLogger interface {
	// Log persists one record. Failures should be logged, not propagated
	// to the caller's request.
	Log(ctx context.Context, record AuditRecord) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]AuditRecord, error)

	// Close releases storage resources.
	Close() error
}

// NopAuditLogger discards all records. Default when no audit path is
// configured.
type NopAuditLogger struct{}

// Log discards the record.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditRecord) error { return nil }

// Recent returns no records.
func (l *NopAuditLogger) Recent(_ context.Context, _ int) ([]AuditRecord, error) {
	return nil, nil
}

// Close is a no-op.
func (l *NopAuditLogger) Close() error { return nil }
