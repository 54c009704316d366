// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline implements the four-stage analysis pipeline:
// intent/entity extraction, stage management, action/insight/script
// generation, and health scoring.
//
// Stages run in order and fail independently: a stage whose inference
// call fails or whose response cannot be decoded degrades to an empty
// patch, and the pipeline continues. No single stage failure prevents
// state from advancing.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/inference"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/toolcat"
)

var tracer = otel.Tracer("aleutian.copilot.pipeline")

// StateSource is the pipeline's view of the engine's state store.
// Snapshot and Apply are serialized by the engine; stages never touch
// authoritative state directly.
type StateSource interface {
	// Snapshot returns a copy of the current conversation state.
	Snapshot() *datatypes.ConversationState

	// Apply merges a stage's patch into authoritative state.
	Apply(source string, patch *datatypes.StatePatch)
}

// FaultObserver is notified when a stage degrades. The engine uses it
// to emit stage-fault events and bump metrics.
type FaultObserver func(stage string, err error)

// RunReport summarizes one pipeline run.
type RunReport struct {
	// StageFaults is how many stages degraded to an empty patch.
	StageFaults int

	// Duration is the wall time of the full run.
	Duration time.Duration
}

// Pipeline is the fixed four-stage analysis sequence.
//
// Thread Safety: Pipeline is immutable after construction and safe for
// concurrent use; one Pipeline is shared by all conversations.
type Pipeline struct {
	stages       []Stage
	stageTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStageTimeout bounds each stage's inference call.
func WithStageTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.stageTimeout = d
	}
}

// New creates the standard four-stage pipeline.
//
// Inputs:
//
//	client - Inference backend.
//	catalog - Tool catalog (grounds stage-3 risk levels).
//	opts - Configuration options.
func New(client inference.Client, catalog *toolcat.Catalog, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: []Stage{
			&extractionStage{client: client},
			&stageManagementStage{client: client},
			&actionStage{client: client, catalog: catalog, now: time.Now},
			&healthStage{client: client},
		},
		stageTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes all stages in order against src.
//
// Description:
//
//	Each stage sees a snapshot that already includes the patches of the
//	stages before it. A failing stage is isolated: its error goes to
//	onFault, an empty patch is applied (a no-op), and the next stage
//	runs. A timeout on the per-stage inference call is a StageFault
//	like any other.
//
// Inputs:
//
//	ctx - Context for the whole run.
//	src - The engine's state store view.
//	onFault - Fault callback; may be nil.
//
// Outputs:
//
//	RunReport - Fault count and duration.
func (p *Pipeline) Run(ctx context.Context, src StateSource, onFault FaultObserver) RunReport {
	start := time.Now()
	report := RunReport{}

	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	for _, stage := range p.stages {
		patch, err := p.runStage(ctx, stage, src)
		if err != nil {
			report.StageFaults++
			slog.Warn("Pipeline stage degraded",
				"stage", stage.Name(),
				"error", err.Error(),
			)
			if onFault != nil {
				onFault(stage.Name(), err)
			}
			patch = datatypes.EmptyPatch()
		}
		if !patch.IsEmpty() {
			src.Apply(stage.Name(), patch)
		}
	}

	report.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("stage_faults", report.StageFaults),
		attribute.Int64("duration_ms", report.Duration.Milliseconds()),
	)
	return report
}

// runStage executes one stage with its own timeout and span.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, src StateSource) (*datatypes.StatePatch, error) {
	ctx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "pipeline.stage."+stage.Name())
	defer span.End()

	patch, err := stage.Execute(ctx, src.Snapshot())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return patch, nil
}

// StageNames returns the stage names in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// NewForStages builds a pipeline from explicit stages. Used by tests
// to exercise the fault-isolation contract with synthetic stages.
func NewForStages(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{stages: stages, stageTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(p)
	}
	return p
}
