// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/mcpgate/services/gateway/events"
)

const (
	// eventWriteTimeout bounds each websocket write so one stalled client
	// cannot back up the stream goroutine.
	eventWriteTimeout = 5 * time.Second

	// eventStreamBuffer is the per-connection queue depth; a client that
	// falls this far behind is disconnected rather than slowing emitters.
	eventStreamBuffer = 64

	// eventPingInterval keeps idle connections alive through proxies.
	eventPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// StreamEvents handles GET /v1/events/stream: upgrades to a websocket,
// replays the recent lifecycle event buffer, then pushes live events.
//
// Inputs (query):
//
//	clientId - Optional; restricts the stream to one client's processes.
//	replay - Optional; how many buffered events to replay first (default 0).
func StreamEvents(emitter *events.Emitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := c.Query("clientId")
		replay := 0
		if v := c.Query("replay"); v != "" {
			if err := bindPositiveInt(v, &replay); err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "replay must be a non-negative integer"})
				return
			}
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", slog.Any("error", err))
			return
		}
		defer ws.Close()
		slog.Info("event stream connected", slog.String("clientId", clientID))

		// Buffered queue decouples the emitter's synchronous handlers from
		// websocket write latency.
		queue := make(chan events.Event, eventStreamBuffer)

		var filter events.Filter
		if clientID != "" {
			filter = func(ev events.Event) bool { return ev.ClientID == clientID }
		}
		subID := emitter.SubscribeWithFilter(func(ev events.Event) {
			select {
			case queue <- ev:
			default:
				// Drop rather than block; the slow client detects the gap
				// by event ID if it cares.
			}
		}, filter)
		defer emitter.Unsubscribe(subID)

		if replay > 0 {
			for _, ev := range emitter.Recent(replay) {
				if clientID != "" && ev.ClientID != clientID {
					continue
				}
				if !writeEvent(ws, ev) {
					return
				}
			}
		}

		// Reader goroutine: we never expect client messages, but reading is
		// what surfaces close frames and connection drops.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		pinger := time.NewTicker(eventPingInterval)
		defer pinger.Stop()

		for {
			select {
			case ev := <-queue:
				if !writeEvent(ws, ev) {
					return
				}
			case <-pinger.C:
				deadline := time.Now().Add(eventWriteTimeout)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-closed:
				slog.Info("event stream disconnected", slog.String("clientId", clientID))
				return
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

// writeEvent sends one event, reporting false once the connection is gone.
func writeEvent(ws *websocket.Conn, ev events.Event) bool {
	if err := ws.SetWriteDeadline(time.Now().Add(eventWriteTimeout)); err != nil {
		return false
	}
	if err := ws.WriteJSON(ev); err != nil {
		slog.Warn("event stream write failed", slog.Any("error", err))
		return false
	}
	return true
}
