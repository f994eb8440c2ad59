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

import "strings"

// RedactionMarker replaces sensitive values in reporting output.
const RedactionMarker = "[REDACTED]"

// sensitiveTerms flag env keys and argument flags whose values must never
// leave the manager. Matched case-insensitively as substrings.
var sensitiveTerms = []string{
	"password",
	"pass",
	"key",
	"secret",
	"token",
	"auth",
}

// isSensitiveName reports whether an env key or flag name looks sensitive.
func isSensitiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range sensitiveTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// RedactConfig returns a copy of cfg with sensitive env values and argument
// values replaced by the redaction marker. An argument value is redacted when
// the preceding flag name matches a sensitive term, in both
// "--flag value" and "--flag=value" forms.
func RedactConfig(cfg ServerConfig) ServerConfig {
	out := ServerConfig{Command: cfg.Command}

	if len(cfg.Args) > 0 {
		out.Args = make([]string, len(cfg.Args))
		redactNext := false
		for i, arg := range cfg.Args {
			switch {
			case redactNext:
				out.Args[i] = RedactionMarker
				redactNext = false
			case strings.HasPrefix(arg, "-"):
				if name, value, found := strings.Cut(arg, "="); found {
					if isSensitiveName(strings.TrimLeft(name, "-")) && value != "" {
						out.Args[i] = name + "=" + RedactionMarker
					} else {
						out.Args[i] = arg
					}
				} else {
					out.Args[i] = arg
					redactNext = isSensitiveName(strings.TrimLeft(arg, "-"))
				}
			default:
				out.Args[i] = arg
			}
		}
	}

	if len(cfg.Env) > 0 {
		out.Env = make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			if isSensitiveName(k) {
				out.Env[k] = RedactionMarker
			} else {
				out.Env[k] = v
			}
		}
	}

	return out
}
