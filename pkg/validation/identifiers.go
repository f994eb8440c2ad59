// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation shared across services.
package validation

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxIdentifierLength bounds client and server identifiers.
const MaxIdentifierLength = 128

// ErrInvalidIdentifier indicates an identifier failed validation.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// identifierPattern permits letters, digits, dot, underscore, and hyphen.
// Colons are excluded so identifiers cannot collide with the composite-key
// separator, and path separators are excluded so identifiers are safe as
// URL path segments.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Identifier validates a clientId, serverName, or catalog name.
//
// Outputs:
//
//	error - ErrInvalidIdentifier (wrapped with the offending field name)
//	        when the value is empty, too long, or contains characters
//	        outside [A-Za-z0-9._-].
func Identifier(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s must not be empty", ErrInvalidIdentifier, field)
	}
	if len(value) > MaxIdentifierLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidIdentifier, field, MaxIdentifierLength)
	}
	if !identifierPattern.MatchString(value) {
		return fmt.Errorf("%w: %s contains disallowed characters", ErrInvalidIdentifier, field)
	}
	return nil
}
