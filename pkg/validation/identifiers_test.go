// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestIdentifier(t *testing.T) {
	valid := []string{
		"client-a",
		"my.server_01",
		"A",
		strings.Repeat("x", MaxIdentifierLength),
	}
	for _, v := range valid {
		if err := Identifier("field", v); err != nil {
			t.Errorf("Identifier(%q) = %v, want nil", v, err)
		}
	}

	invalid := []string{
		"",
		"has space",
		"client:server", // colon is the composite-key separator
		"a/b",
		"a\\b",
		"../escape",
		"emoji☃",
		strings.Repeat("x", MaxIdentifierLength+1),
	}
	for _, v := range invalid {
		err := Identifier("field", v)
		if err == nil {
			t.Errorf("Identifier(%q) = nil, want error", v)
			continue
		}
		if !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("Identifier(%q) error = %v, want ErrInvalidIdentifier", v, err)
		}
	}
}

func TestIdentifierErrorNamesField(t *testing.T) {
	err := Identifier("clientId", "")
	if err == nil || !strings.Contains(err.Error(), "clientId") {
		t.Errorf("error %v should name the offending field", err)
	}
}
