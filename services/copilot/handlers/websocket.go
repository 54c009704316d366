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
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSCommand is an inbound websocket message: either an utterance or an
// action decision.
type WSCommand struct {
	// Action is "utterance", "confirm", "dismiss", or "cancel".
	Action string `json:"action"`

	// Speaker and Text apply to utterance commands.
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text,omitempty"`

	// ActionID applies to confirm/dismiss/cancel commands.
	ActionID string `json:"action_id,omitempty"`

	// Reason applies to dismiss commands.
	Reason string `json:"reason,omitempty"`
}

// HandleWebSocket serves a bidirectional connection: engine events out,
// utterances and action decisions in.
func HandleWebSocket(reg *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		e := reg.GetOrCreate(conversationID)

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to upgrade websocket", "conversation_id", conversationID, "error", err.Error())
			return
		}
		defer ws.Close()
		slog.Info("Websocket client connected", "conversation_id", conversationID)

		// Gorilla permits one concurrent writer; events and command acks
		// share the connection.
		var writeMu sync.Mutex
		send := func(v any) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return ws.WriteJSON(v)
		}

		subID := e.Events().Subscribe(func(event *events.Event) {
			if err := send(event); err != nil {
				slog.Debug("Websocket event write failed", "conversation_id", conversationID, "error", err.Error())
			}
		})
		defer e.Events().Unsubscribe(subID)

		// Current state first, same contract as the SSE stream.
		if err := send(gin.H{"action": "snapshot", "state": e.Snapshot()}); err != nil {
			return
		}

		for {
			var cmd WSCommand
			if err := ws.ReadJSON(&cmd); err != nil {
				slog.Info("Websocket client disconnected", "conversation_id", conversationID, "error", err.Error())
				return
			}
			handleWSCommand(e, &cmd, send)
		}
	}
}

func handleWSCommand(e *engine.Engine, cmd *WSCommand, send func(any) error) {
	var err error
	switch cmd.Action {
	case "utterance":
		if cmd.Text == "" || (cmd.Speaker != string(datatypes.SpeakerAgent) && cmd.Speaker != string(datatypes.SpeakerCustomer)) {
			err = errInvalidCommand
			break
		}
		e.SubmitUtterance(datatypes.Speaker(cmd.Speaker), cmd.Text)
	case "confirm":
		err = e.ConfirmAction(cmd.ActionID)
	case "dismiss":
		reason := cmd.Reason
		if reason == "" {
			reason = "dismissed"
		}
		err = e.DismissAction(cmd.ActionID, reason)
	case "cancel":
		err = e.CancelCountdown(cmd.ActionID)
	default:
		err = errInvalidCommand
	}

	if err != nil {
		_ = send(gin.H{"action": "error", "command": cmd.Action, "error": err.Error()})
	}
}

var errInvalidCommand = errors.New("invalid websocket command")
