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
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/events"
)

// eventBufferSize bounds the per-consumer delivery queue. A consumer
// that cannot keep up loses events rather than backing up the engine.
const eventBufferSize = 64

// keepAliveInterval is how often an SSE comment ping goes out so
// proxies do not reap an otherwise quiet stream.
const keepAliveInterval = 15 * time.Second

// StreamEvents serves the conversation's event stream over SSE.
//
// Description:
//
//	Subscribes to the engine's emitter and forwards every event as
//	`event: <type>` / `data: <json>` frames. On connect, the current
//	state is sent first so the consumer does not need a separate
//	snapshot fetch. Events that arrive faster than the client reads
//	are dropped (the next state-updated event carries full state, so
//	consumers self-heal).
func StreamEvents(reg *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := reg.Get(c.Param("conversationId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}

		ch := make(chan *events.Event, eventBufferSize)
		subID := e.Events().Subscribe(func(event *events.Event) {
			select {
			case ch <- event:
			default:
				slog.Warn("Dropping event for slow SSE consumer",
					"conversation_id", event.ConversationID,
					"event_type", event.Type,
				)
			}
		})
		defer e.Events().Unsubscribe(subID)

		// Initial snapshot so the consumer starts from current state.
		writeSSE(c, flusher, &events.Event{
			Type:           events.TypeStateUpdated,
			ConversationID: e.ConversationID(),
			Timestamp:      time.Now(),
			Data:           events.StateUpdatedData{Source: "snapshot", State: e.Snapshot()},
		})

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				return
			case event := <-ch:
				if err := writeSSE(c, flusher, event); err != nil {
					return
				}
			case <-keepAlive.C:
				if _, err := fmt.Fprint(c.Writer, ": keepalive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(c *gin.Context, flusher http.Flusher, event *events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal SSE event", "event_type", event.Type, "error", err.Error())
		return nil
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
