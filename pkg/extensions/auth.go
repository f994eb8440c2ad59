// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/awnumar/memguard"
)

// ErrInvalidToken indicates the presented bearer token failed validation.
var ErrInvalidToken = errors.New("invalid auth token")

// AuthInfo describes an authenticated caller.
type AuthInfo struct {
	// UserID identifies the caller.
	UserID string

	// Roles lists the caller's roles. The shared-secret provider grants a
	// single "admin" role; richer providers map identity claims here.
	Roles []string
}

// HasRole reports whether the caller holds the role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens.
//
// Implementations must be safe for concurrent use and must return
// ErrInvalidToken (possibly wrapped) for tokens that fail validation so the
// middleware can map the failure to a 401.
type AuthProvider interface {
	// Validate checks the token and returns the caller's identity.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// =============================================================================
// NOP PROVIDER
// =============================================================================

// NopAuthProvider authenticates every request as a local admin. This is the
// default for local single-user deployments with no secret configured.
type NopAuthProvider struct{}

// Validate always succeeds.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{UserID: "local-user", Roles: []string{"admin"}}, nil
}

// =============================================================================
// SHARED SECRET PROVIDER
// =============================================================================

// SharedSecretProvider validates tokens against a single shared secret held
// in an mlocked memguard enclave, so the secret never sits in plain heap
// memory between requests.
type SharedSecretProvider struct {
	enclave *memguard.Enclave
}

// NewSharedSecretProvider seals the secret into an enclave. The caller's
// copy should be discarded afterwards.
func NewSharedSecretProvider(secret string) *SharedSecretProvider {
	return &SharedSecretProvider{
		enclave: memguard.NewEnclave([]byte(secret)),
	}
}

// Validate compares the token against the sealed secret in constant time.
func (p *SharedSecretProvider) Validate(_ context.Context, token string) (*AuthInfo, error) {
	buf, err := p.enclave.Open()
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	defer buf.Destroy()

	if subtle.ConstantTimeCompare(buf.Bytes(), []byte(token)) != 1 {
		return nil, ErrInvalidToken
	}
	return &AuthInfo{UserID: "gateway-client", Roles: []string{"admin"}}, nil
}
