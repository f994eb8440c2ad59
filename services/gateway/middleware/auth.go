// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the gateway service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header,
// validates it using the configured AuthProvider, and stores the resulting
// AuthInfo in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo)
//
// With NopAuthProvider (the default when no shared secret is configured),
// all requests authenticate as "local-user".
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/mcpgate/pkg/extensions"
)

// authInfoKey is the context key for storing AuthInfo. A namespaced key
// prevents collisions with other context values.
const authInfoKey = "mcpgate_auth_info"

// SetAuthInfo stores the authenticated user info in the Gin context.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user info, or nil when the request
// was not authenticated.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// AuthMiddleware validates bearer tokens with the given provider.
//
// Description:
//
//	Rejects requests without a "Authorization: Bearer <token>" header with
//	401, validates the token via the provider, and stores the resulting
//	identity for handlers. NopAuthProvider short-circuits the header
//	requirement so local deployments work tokenless.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	_, tokenless := provider.(*extensions.NopAuthProvider)

	return func(c *gin.Context) {
		token := ""
		if !tokenless {
			header := c.GetHeader("Authorization")
			var ok bool
			token, ok = strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "missing bearer token",
				})
				return
			}
		}

		info, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			status := http.StatusUnauthorized
			if !errors.Is(err, extensions.ErrInvalidToken) {
				status = http.StatusInternalServerError
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "authentication failed"})
			return
		}

		SetAuthInfo(c, info)
		c.Next()
	}
}
