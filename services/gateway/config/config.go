// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads gateway configuration from the environment.
//
// Every knob has a default suitable for local single-user operation; the
// MCPGATE_ prefix namespaces all variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the fully resolved gateway configuration.
type Config struct {
	// Port is the HTTP listen port. MCPGATE_PORT, default 8765.
	Port string

	// AuthToken is the shared secret for bearer auth. MCPGATE_AUTH_TOKEN.
	// Empty disables authentication (local single-user mode).
	AuthToken string

	// CatalogPath points at a YAML server catalog. MCPGATE_CATALOG_PATH.
	// Empty uses the embedded default catalog (no hot reload).
	CatalogPath string

	// AuditPath is the BadgerDB directory for the invocation audit trail.
	// MCPGATE_AUDIT_PATH. Empty disables auditing.
	AuditPath string

	// HandshakeTimeout bounds the initialize handshake.
	// MCPGATE_HANDSHAKE_TIMEOUT_SECONDS, default 30.
	HandshakeTimeout time.Duration

	// SweepInterval is the idle-sweep period.
	// MCPGATE_SWEEP_INTERVAL_SECONDS, default 60.
	SweepInterval time.Duration

	// HeartbeatInterval is the keep-alive sweep period.
	// MCPGATE_HEARTBEAT_INTERVAL_SECONDS, default 120.
	HeartbeatInterval time.Duration

	// DefaultTTL applies to ensure requests without a TTL.
	// MCPGATE_DEFAULT_TTL_SECONDS, default 300.
	DefaultTTL time.Duration

	// RateLimitRPS and RateLimitBurst tune the per-client limiter.
	// MCPGATE_RATE_LIMIT_RPS (default 10), MCPGATE_RATE_LIMIT_BURST
	// (default 20).
	RateLimitRPS   float64
	RateLimitBurst int

	// InfluxURL enables the lifecycle-event Influx sink when set.
	// MCPGATE_INFLUX_URL plus MCPGATE_INFLUX_TOKEN / _ORG / _BUCKET.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// LogLevel is debug, info, warn, or error. MCPGATE_LOG_LEVEL.
	LogLevel string

	// LogDir enables file logging when set. MCPGATE_LOG_DIR.
	LogDir string
}

// FromEnv resolves the configuration from the process environment.
func FromEnv() Config {
	return Config{
		Port:              getEnvOr("MCPGATE_PORT", "8765"),
		AuthToken:         os.Getenv("MCPGATE_AUTH_TOKEN"),
		CatalogPath:       os.Getenv("MCPGATE_CATALOG_PATH"),
		AuditPath:         os.Getenv("MCPGATE_AUDIT_PATH"),
		HandshakeTimeout:  secondsEnv("MCPGATE_HANDSHAKE_TIMEOUT_SECONDS", 30),
		SweepInterval:     secondsEnv("MCPGATE_SWEEP_INTERVAL_SECONDS", 60),
		HeartbeatInterval: secondsEnv("MCPGATE_HEARTBEAT_INTERVAL_SECONDS", 120),
		DefaultTTL:        secondsEnv("MCPGATE_DEFAULT_TTL_SECONDS", 300),
		RateLimitRPS:      floatEnv("MCPGATE_RATE_LIMIT_RPS", 10),
		RateLimitBurst:    intEnv("MCPGATE_RATE_LIMIT_BURST", 20),
		InfluxURL:         os.Getenv("MCPGATE_INFLUX_URL"),
		InfluxToken:       os.Getenv("MCPGATE_INFLUX_TOKEN"),
		InfluxOrg:         getEnvOr("MCPGATE_INFLUX_ORG", "mcpgate"),
		InfluxBucket:      getEnvOr("MCPGATE_INFLUX_BUCKET", "lifecycle-events"),
		LogLevel:          getEnvOr("MCPGATE_LOG_LEVEL", "info"),
		LogDir:            os.Getenv("MCPGATE_LOG_DIR"),
	}
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func secondsEnv(key string, fallback int) time.Duration {
	return time.Duration(intEnv(key, fallback)) * time.Second
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func floatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}
