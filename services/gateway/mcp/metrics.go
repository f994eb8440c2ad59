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

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for registry operations.
var (
	tracer = otel.Tracer("mcpgate.mcp")
	meter  = otel.Meter("mcpgate.mcp")
)

// Metrics for process lifecycle operations.
var (
	spawnTotal       metric.Int64Counter
	handshakeLatency metric.Float64Histogram
	evictionTotal    metric.Int64Counter
	callLatency      metric.Float64Histogram
	heartbeatTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		spawnTotal, err = meter.Int64Counter(
			"mcp_server_spawns_total",
			metric.WithDescription("Total number of MCP server spawns"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		handshakeLatency, err = meter.Float64Histogram(
			"mcp_handshake_duration_seconds",
			metric.WithDescription("Duration of initialize handshakes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evictionTotal, err = meter.Int64Counter(
			"mcp_server_evictions_total",
			metric.WithDescription("Total number of registry evictions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callLatency, err = meter.Float64Histogram(
			"mcp_call_duration_seconds",
			metric.WithDescription("Duration of correlated tool calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		heartbeatTotal, err = meter.Int64Counter(
			"mcp_heartbeats_total",
			metric.WithDescription("Total number of keep-alive pings sent"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startEnsureSpan creates a span for an ensure operation.
func startEnsureSpan(ctx context.Context, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Manager.Ensure",
		trace.WithAttributes(attribute.String("mcp.key", key)),
	)
}

// recordSpawn counts one spawn attempt.
func recordSpawn(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	spawnTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// recordHandshake records handshake duration and outcome.
func recordHandshake(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	handshakeLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("success", success)))
}

// recordEviction counts one registry eviction by cause.
func recordEviction(ctx context.Context, cause string) {
	if err := initMetrics(); err != nil {
		return
	}
	evictionTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// recordCall records a correlated call's duration and outcome.
func recordCall(ctx context.Context, method string, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	callLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("success", success),
	))
}

// recordHeartbeat counts one keep-alive ping.
func recordHeartbeat(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	heartbeatTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
