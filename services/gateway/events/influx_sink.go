// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxSinkConfig configures the optional InfluxDB lifecycle-event sink.
type InfluxSinkConfig struct {
	// URL is the InfluxDB endpoint (e.g. http://influxdb:8086).
	URL string

	// Token authenticates writes.
	Token string

	// Org and Bucket name the write destination.
	Org    string
	Bucket string

	// Measurement is the point measurement name. Default: "mcp_lifecycle".
	Measurement string

	// WriteTimeout bounds each point write. Default: 5s.
	WriteTimeout time.Duration
}

// InfluxSink exports lifecycle events to InfluxDB as measurement points.
//
// Writes are fire-and-forget: a failed write is logged and dropped so a slow
// or absent InfluxDB never stalls the registry's event path.
type InfluxSink struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
	timeout     time.Duration
	subID       string
}

// NewInfluxSink creates the sink and subscribes it to the emitter.
//
// Outputs:
//
//	*InfluxSink - The subscribed sink. Call Close on shutdown.
func NewInfluxSink(emitter *Emitter, cfg InfluxSinkConfig) *InfluxSink {
	if cfg.Measurement == "" {
		cfg.Measurement = "mcp_lifecycle"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	s := &InfluxSink{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: cfg.Measurement,
		timeout:     cfg.WriteTimeout,
	}
	s.subID = emitter.Subscribe(s.handle)

	slog.Info("influx lifecycle sink enabled",
		slog.String("url", cfg.URL),
		slog.String("bucket", cfg.Bucket),
	)
	return s
}

// handle writes one event as a point.
func (s *InfluxSink) handle(event Event) {
	point := influxdb2.NewPointWithMeasurement(s.measurement).
		AddTag("type", string(event.Type)).
		AddTag("client_id", event.ClientID).
		AddTag("server_name", event.ServerName).
		AddField("pid", event.PID).
		AddField("detail", event.Detail).
		SetTime(event.Timestamp)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		slog.Warn("influx lifecycle write failed",
			slog.String("type", string(event.Type)),
			slog.Any("error", err),
		)
	}
}

// Close detaches the sink from the emitter and closes the client.
func (s *InfluxSink) Close(emitter *Emitter) {
	emitter.Unsubscribe(s.subID)
	s.client.Close()
}
