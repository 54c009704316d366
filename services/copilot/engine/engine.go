// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine wires one conversation's scheduler, analysis pipeline,
// action lifecycle manager, and dispatcher around a single authoritative
// ConversationState.
//
// The engine owns the state lock. Pipeline stages see snapshots and
// produce patches; the lifecycle manager and dispatcher mutate through
// the same serialized entry point. Consumers observe everything through
// the event emitter.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/actions"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/dispatch"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/events"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/pipeline"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/scheduler"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/timing"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/inference"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/observability"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/toolcat"
)

// Engine orchestrates one live conversation.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Engine struct {
	conversationID string

	mu    sync.Mutex
	state *datatypes.ConversationState

	// pendingCandidates stashes stage-3 proposals during a pipeline run
	// until the lifecycle manager reconciles them. Guarded by mu.
	pendingCandidates []*datatypes.ExecutableAction

	clock      timing.Clock
	emitter    *events.Emitter
	sched      *scheduler.Scheduler
	pipe       *pipeline.Pipeline
	manager    *actions.Manager
	dispatcher *dispatch.Dispatcher
}

// Option configures an Engine.
type Option func(*engineDeps)

type engineDeps struct {
	clock timing.Clock
	pipe  *pipeline.Pipeline
}

// WithClock injects a time source. Tests pass a manual clock.
func WithClock(clock timing.Clock) Option {
	return func(d *engineDeps) {
		d.clock = clock
	}
}

// WithPipeline replaces the standard four-stage pipeline. Tests use
// this to run synthetic stages.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(d *engineDeps) {
		d.pipe = p
	}
}

// New creates an engine for one conversation.
//
// Inputs:
//
//	conversationID - The conversation this engine owns.
//	infClient - Inference backend for the pipeline.
//	toolClient - Tool Service client for the dispatcher.
//	catalog - Tool catalog.
//	cfg - Engine tunables.
//	opts - Dependency overrides.
func New(conversationID string, infClient inference.Client, toolClient toolcat.ToolClient, catalog *toolcat.Catalog, cfg Config, opts ...Option) *Engine {
	deps := &engineDeps{clock: timing.RealClock{}}
	for _, opt := range opts {
		opt(deps)
	}

	e := &Engine{
		conversationID: conversationID,
		clock:          deps.clock,
		emitter:        events.NewEmitter(events.WithConversationID(conversationID)),
	}
	e.state = datatypes.NewConversationState(conversationID, e.clock.Now())

	e.pipe = deps.pipe
	if e.pipe == nil {
		e.pipe = pipeline.New(infClient, catalog, pipeline.WithStageTimeout(cfg.StageTimeout))
	}
	e.dispatcher = dispatch.NewDispatcher(toolClient, catalog, e, e.emitter,
		dispatch.WithInvocationTimeout(cfg.InvocationTimeout))
	e.manager = actions.NewManager(e, e.clock, e.emitter, e.dispatcher, catalog, cfg.Policy)
	e.sched = scheduler.New(cfg.Scheduler, e.clock, e.runPipeline)

	e.emitter.Subscribe(recordEventMetrics, events.TypeActionResolved, events.TypeDispatch)
	return e
}

// ConversationID returns the conversation this engine owns.
func (e *Engine) ConversationID() string {
	return e.conversationID
}

// Events returns the conversation's event emitter for consumers to
// subscribe on.
func (e *Engine) Events() *events.Emitter {
	return e.emitter
}

// SubmitUtterance appends a transcript message and schedules analysis.
//
// Description:
//
//	The message lands in state immediately (the transcript never waits
//	on the debounce), then the fragment is handed to the scheduler,
//	which reclassifies the combined unprocessed buffer and restarts the
//	adaptive wait.
//
// Inputs:
//
//	speaker - Who said it.
//	text - The transcribed utterance.
//
// Thread Safety: This method is safe for concurrent use and never
// blocks on analysis.
func (e *Engine) SubmitUtterance(speaker datatypes.Speaker, text string) {
	e.Mutate(func(state *datatypes.ConversationState) {
		state.AppendMessage(datatypes.TranscriptMessage{
			Speaker:   speaker,
			Text:      text,
			Timestamp: e.clock.Now().UnixMilli(),
		})
	})
	observability.DefaultMetrics.RecordUtterance(string(speaker))
	e.sched.NoteUtterance(text)
}

// ConfirmAction approves a suggested action for execution.
func (e *Engine) ConfirmAction(actionID string) error {
	return e.manager.Confirm(actionID)
}

// DismissAction declines an action.
func (e *Engine) DismissAction(actionID, reason string) error {
	return e.manager.Dismiss(actionID, reason)
}

// CancelCountdown stops a pending auto-execution; the action is
// dismissed with reason "user_cancel".
func (e *Engine) CancelCountdown(actionID string) error {
	return e.manager.CancelCountdown(actionID)
}

// Flush forces analysis of any unprocessed fragments.
func (e *Engine) Flush() {
	e.sched.Flush()
}

// Close shuts the engine down: timers stop, pending countdowns are
// cancelled, in-flight work is allowed to finish.
func (e *Engine) Close() {
	e.sched.Close()
	e.manager.CancelAll()
}

// LastActivityMs returns the UpdatedAt of the conversation state, used
// by the registry's idle sweep.
func (e *Engine) LastActivityMs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.UpdatedAt
}

// =============================================================================
// State store (pipeline.StateSource, actions.Store, dispatch.Store)
// =============================================================================

// Snapshot returns a deep copy of the conversation state.
func (e *Engine) Snapshot() *datatypes.ConversationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Apply merges a pipeline stage's patch into authoritative state.
//
// Description:
//
//	Candidate actions are not reduced here: they are stashed for the
//	lifecycle manager, which reconciles them after the full run so
//	staleness is judged against the final stage/profile of the run.
func (e *Engine) Apply(source string, patch *datatypes.StatePatch) {
	e.mu.Lock()
	if len(patch.CandidateActions) > 0 {
		e.pendingCandidates = append(e.pendingCandidates, patch.CandidateActions...)
	}
	reduce(e.state, patch)
	e.state.UpdatedAt = e.clock.Now().UnixMilli()
	snap := e.state.Clone()
	e.mu.Unlock()

	e.emitter.Emit(events.TypeStateUpdated, events.StateUpdatedData{Source: source, State: snap})
}

// Mutate runs fn under the state lock and notifies consumers.
func (e *Engine) Mutate(fn func(*datatypes.ConversationState)) {
	e.mu.Lock()
	fn(e.state)
	e.state.UpdatedAt = e.clock.Now().UnixMilli()
	snap := e.state.Clone()
	e.mu.Unlock()

	e.emitter.Emit(events.TypeStateUpdated, events.StateUpdatedData{Source: "engine", State: snap})
}

// takePendingCandidates drains the stash from the last pipeline run.
func (e *Engine) takePendingCandidates() []*datatypes.ExecutableAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.pendingCandidates
	e.pendingCandidates = nil
	return out
}

// =============================================================================
// Pipeline run
// =============================================================================

// runPipeline is the scheduler's callback: one full analysis run.
func (e *Engine) runPipeline(trigger scheduler.Trigger) {
	before := e.Snapshot()

	report := e.pipe.Run(context.Background(), e, func(stage string, err error) {
		observability.DefaultMetrics.RecordStageFault(stage)
		e.emitter.Emit(events.TypeStageFault, events.StageFaultData{
			Stage: stage,
			Error: err.Error(),
		})
	})

	e.manager.Reconcile(before.CurrentStageID, e.takePendingCandidates())

	observability.DefaultMetrics.RecordPipelineRun(string(trigger), report.Duration.Seconds())
	e.emitter.Emit(events.TypePipelineRun, events.PipelineRunData{
		Trigger:      string(trigger),
		MessageCount: len(before.Messages),
		StageFaults:  report.StageFaults,
		Duration:     report.Duration,
	})

	slog.Debug("Pipeline run finished",
		"conversation_id", e.conversationID,
		"trigger", trigger,
		"stage_faults", report.StageFaults,
		"duration_ms", report.Duration.Milliseconds(),
	)
}

// recordEventMetrics bridges lifecycle and dispatch events into the
// Prometheus metrics without coupling those packages to observability.
func recordEventMetrics(event *events.Event) {
	switch data := event.Data.(type) {
	case events.ActionResolvedData:
		observability.DefaultMetrics.RecordActionResolved(string(data.FinalStatus), string(data.Interaction))
	case events.DispatchData:
		observability.DefaultMetrics.RecordDispatch(data.ToolName, data.Phase, data.Duration.Seconds())
	}
}
