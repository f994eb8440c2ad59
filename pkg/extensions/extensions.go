// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the gateway's pluggable extension points.
//
// The open source gateway ships with a shared-secret auth provider and an
// embedded audit store; deployments with heavier requirements substitute
// their own implementations of these interfaces and inject them via
// ServiceOptions without modifying the core.
//
// # Extension Categories
//
//   - auth.go: request authentication (AuthProvider)
//   - audit.go: tool-invocation audit trail (AuditLogger)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// All fields are optional; nil values are replaced with no-op defaults by
// DefaultOptions().
type ServiceOptions struct {
	// AuthProvider validates bearer tokens on inbound requests.
	// Default: NopAuthProvider (all requests authenticated as local-user).
	AuthProvider AuthProvider

	// AuditLogger records tool invocations.
	// Default: NopAuditLogger (discards all records).
	AuditLogger AuditLogger
}

// DefaultOptions returns ServiceOptions with no-op defaults.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
		AuditLogger:  &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
