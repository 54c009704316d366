// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/handlers"
)

// SetupRoutes registers the copilot HTTP surface on the router.
func SetupRoutes(router *gin.Engine, reg *engine.Registry) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/conversations", handlers.ListConversations(reg))

		conversations := v1.Group("/conversations/:conversationId")
		{
			conversations.POST("/utterances", handlers.SubmitUtterance(reg))
			conversations.GET("", handlers.GetConversation(reg))
			conversations.DELETE("", handlers.CloseConversation(reg))
			conversations.GET("/events", handlers.StreamEvents(reg))
			conversations.GET("/ws", handlers.HandleWebSocket(reg))

			actions := conversations.Group("/actions/:actionId")
			{
				actions.POST("/confirm", handlers.ConfirmAction(reg))
				actions.POST("/dismiss", handlers.DismissAction(reg))
				actions.POST("/cancel", handlers.CancelCountdown(reg))
			}
		}
	}
}
