// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command copilot starts the AleutianCopilot orchestration HTTP server.
//
// The service keeps one engine per live conversation: transcript
// fragments come in over REST or websocket, the adaptive scheduler
// batches them into analysis pipeline runs, and consumers follow
// suggested actions and state updates over SSE or websocket.
//
// # Environment Variables
//
//   - COPILOT_PORT: HTTP server port (default: 12230)
//   - OPENAI_API_KEY / OPENAI_MODEL / OPENAI_BASE_URL: inference backend
//   - TOOL_SERVICE_URL: Tool Service base URL (required for execution)
//   - TOOL_CATALOG_PATH: YAML tool catalog (default: built-in catalog)
//   - COPILOT_IDLE_TIMEOUT_MIN: idle conversation retirement (default: 30)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o copilot ./cmd/copilot
//
//	# Run
//	./copilot
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianCopilot/pkg/logging"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/inference"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/observability"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/routes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/toolcat"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("copilot-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("COPILOT_PORT")
	if port == "" {
		port = "12230"
	}

	// Structured logging: stderr by default, plus a JSON file log when
	// COPILOT_LOG_DIR is set.
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("COPILOT_LOG_DIR"),
		Service: "copilot",
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	// --- Tool catalog ---
	var catalog *toolcat.Catalog
	if path := os.Getenv("TOOL_CATALOG_PATH"); path != "" {
		catalog, err = toolcat.LoadCatalog(path)
		if err != nil {
			log.Fatalf("FATAL: Could not load the tool catalog: %v", err)
		}
		slog.Info("Loaded tool catalog", "path", path, "tools", catalog.Len())
	} else {
		catalog = toolcat.DefaultCatalog()
		slog.Info("Using built-in tool catalog", "tools", catalog.Len())
	}

	// --- Inference backend ---
	infClient, err := inference.NewOpenAIClient()
	if err != nil {
		log.Fatalf("Failed to initialize inference client: %v", err)
	}

	// --- Tool Service ---
	toolURL := os.Getenv("TOOL_SERVICE_URL")
	if toolURL == "" {
		toolURL = "http://aleutian-tool-service:12240"
		slog.Warn("TOOL_SERVICE_URL not set, defaulting", "url", toolURL)
	}
	toolClient := toolcat.NewHTTPToolClient(toolURL)

	// --- Engine registry ---
	cfg := engine.DefaultConfig()
	if mins := getEnvInt("COPILOT_IDLE_TIMEOUT_MIN", 30); mins > 0 {
		cfg.IdleTimeout = time.Duration(mins) * time.Minute
	}
	registry := engine.NewRegistry(func(conversationID string) *engine.Engine {
		return engine.New(conversationID, infClient, toolClient, catalog, cfg)
	}, nil, cfg.IdleTimeout)
	defer registry.Close()

	router := gin.Default()
	router.Use(otelgin.Middleware("copilot-service"))

	routes.SetupRoutes(router, registry)

	log.Println("Starting the copilot server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
