// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func limiterRouter(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func hit(r *gin.Engine, url string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	return w.Code
}

func TestRateLimiterExhaustsBurst(t *testing.T) {
	// rps effectively zero so the bucket never refills mid-test.
	r := limiterRouter(NewRateLimiter(0.0001, 3))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "/ping?clientId=a"), "request %d within burst", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "/ping?clientId=a"))
}

func TestRateLimiterBucketsPerClient(t *testing.T) {
	r := limiterRouter(NewRateLimiter(0.0001, 1))

	assert.Equal(t, http.StatusOK, hit(r, "/ping?clientId=a"))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "/ping?clientId=a"))

	// Exhausting client a must not affect client b.
	assert.Equal(t, http.StatusOK, hit(r, "/ping?clientId=b"))
}

func TestRateLimiterFallsBackToIP(t *testing.T) {
	r := limiterRouter(NewRateLimiter(0.0001, 1))

	// No clientId anywhere: both requests share the remote-IP bucket.
	assert.Equal(t, http.StatusOK, hit(r, "/ping"))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "/ping"))
}
