// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/AleutianAI/mcpgate/pkg/extensions"
)

func newTestAuditor(t *testing.T) *BadgerAuditor {
	t.Helper()
	a, err := NewInMemoryAuditor()
	if err != nil {
		t.Fatalf("NewInMemoryAuditor() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestLogAndRecent(t *testing.T) {
	a := newTestAuditor(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := a.Log(ctx, extensions.AuditRecord{
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			Key:        "client-a:files",
			Tool:       "read_file",
			Outcome:    "success",
			DurationMS: int64(10 + i),
			UserID:     "local-user",
		})
		if err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	records, err := a.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Recent() returned %d records, want 3", len(records))
	}

	// Newest first.
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.After(records[i-1].Timestamp) {
			t.Errorf("records out of order at %d: %s after %s",
				i, records[i].Timestamp, records[i-1].Timestamp)
		}
	}
	if records[0].DurationMS != 12 {
		t.Errorf("newest record DurationMS = %d, want 12", records[0].DurationMS)
	}
}

func TestRecentHonorsLimit(t *testing.T) {
	a := newTestAuditor(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := a.Log(ctx, extensions.AuditRecord{Key: "k", Tool: "t", Outcome: "success"}); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	records, err := a.Recent(ctx, 4)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 4 {
		t.Errorf("Recent(4) returned %d records", len(records))
	}
}

func TestRecentEmptyStore(t *testing.T) {
	a := newTestAuditor(t)

	records, err := a.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Recent() on empty store returned %d records", len(records))
	}
}

func TestLogFillsIDAndTimestamp(t *testing.T) {
	a := newTestAuditor(t)
	ctx := context.Background()

	if err := a.Log(ctx, extensions.AuditRecord{Key: "k", Tool: "t", Outcome: "error"}); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	records, err := a.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Recent() returned %d records, want 1", len(records))
	}
	if records[0].ID == "" {
		t.Error("record ID not filled in")
	}
	if records[0].Timestamp.IsZero() {
		t.Error("record timestamp not filled in")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	a, err := NewBadgerAuditor(dir)
	if err != nil {
		t.Fatalf("NewBadgerAuditor() error = %v", err)
	}
	if err := a.Log(context.Background(), extensions.AuditRecord{Key: "k", Tool: "t", Outcome: "success"}); err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewBadgerAuditor(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	records, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Recent() after reopen returned %d records, want 1", len(records))
	}
}
