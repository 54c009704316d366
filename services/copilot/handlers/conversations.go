// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface of the copilot service:
// utterance submission, conversation snapshots, action decisions, and
// the SSE/websocket event streams.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/actions"
)

// UtteranceRequest is the POST body for submitting a transcript fragment.
type UtteranceRequest struct {
	// Speaker is "agent" or "customer".
	Speaker string `json:"speaker" binding:"required,oneof=agent customer"`

	// Text is the transcribed utterance.
	Text string `json:"text" binding:"required"`
}

// DismissRequest is the optional POST body for dismissing an action.
type DismissRequest struct {
	// Reason is why the operator declined. Defaults to "dismissed".
	Reason string `json:"reason"`
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SubmitUtterance appends a transcript fragment to a conversation,
// creating the conversation on first sight.
func SubmitUtterance(reg *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")

		var req UtteranceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Rejected utterance request", "conversation_id", conversationID, "error", err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		e := reg.GetOrCreate(conversationID)
		e.SubmitUtterance(datatypes.Speaker(req.Speaker), req.Text)
		c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
	}
}

// GetConversation returns a full state snapshot.
func GetConversation(reg *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := reg.Get(c.Param("conversationId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusOK, e.Snapshot())
	}
}

// ListConversations returns the IDs of live conversations.
func ListConversations(reg *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"conversations": reg.IDs()})
	}
}

// CloseConversation flushes trailing fragments and retires the engine.
func CloseConversation(reg *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		conversationID := c.Param("conversationId")
		if err := reg.Remove(conversationID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "closed", "conversation_id": conversationID})
	}
}

// ConfirmAction approves a suggested action for execution.
func ConfirmAction(reg *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := reg.Get(c.Param("conversationId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		actionID := c.Param("actionId")
		if err := e.ConfirmAction(actionID); err != nil {
			writeActionError(c, actionID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "executing", "action_id": actionID})
	}
}

// DismissAction declines a suggested or executing action.
func DismissAction(reg *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := reg.Get(c.Param("conversationId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}

		var req DismissRequest
		// The body is optional; a bare POST dismisses with the default reason.
		_ = c.ShouldBindJSON(&req)
		if req.Reason == "" {
			req.Reason = "dismissed"
		}

		actionID := c.Param("actionId")
		if err := e.DismissAction(actionID, req.Reason); err != nil {
			writeActionError(c, actionID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "dismissed", "action_id": actionID})
	}
}

// CancelCountdown stops a pending auto-execution.
func CancelCountdown(reg *engine.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, ok := reg.Get(c.Param("conversationId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		actionID := c.Param("actionId")
		if err := e.CancelCountdown(actionID); err != nil {
			writeActionError(c, actionID, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cancelled", "action_id": actionID})
	}
}

func writeActionError(c *gin.Context, actionID string, err error) {
	switch {
	case errors.Is(err, actions.ErrActionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "action not found", "action_id": actionID})
	case errors.Is(err, actions.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "action_id": actionID})
	default:
		slog.Error("Action operation failed", "action_id", actionID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
