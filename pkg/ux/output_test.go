// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"
)

func TestTableAlignment(t *testing.T) {
	SetLevel(PersonalityMachine)
	defer SetLevel(PersonalityFull)

	out := Table([][]string{
		{"NAME", "PID"},
		{"filesystem", "12345"},
		{"fetch", "7"},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	// Columns start at the same offset on every row.
	header := strings.Index(lines[0], "PID")
	row := strings.Index(lines[1], "12345")
	if header != row {
		t.Errorf("PID column misaligned: header at %d, row at %d", header, row)
	}
}

func TestTableEmpty(t *testing.T) {
	if out := Table(nil); out != "" {
		t.Errorf("Table(nil) = %q, want empty", out)
	}
}

func TestIconRender(t *testing.T) {
	// Unstyled icons pass through untouched.
	if got := IconArrow.Render(); got != string(IconArrow) {
		t.Errorf("IconArrow.Render() = %q, want %q", got, string(IconArrow))
	}
}
