// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides event types and handling for the copilot engine.
//
// Events are how the excluded presentation layer observes the engine:
// state updates, auto-execution countdown ticks, and action resolutions
// all flow through the emitter without coupling consumers to engine
// internals.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package events

import (
	"time"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
)

// Type identifies the kind of event.
type Type string

const (
	// TypeStateUpdated is emitted after every reducer application that
	// changed conversation state. Data is StateUpdatedData.
	TypeStateUpdated Type = "state_updated"

	// TypeCountdownTick is emitted once per second while an action's
	// auto-execution countdown runs. Data is CountdownTickData.
	TypeCountdownTick Type = "countdown_tick"

	// TypeActionResolved is emitted when an action reaches a terminal
	// status. Data is ActionResolvedData.
	TypeActionResolved Type = "action_resolved"

	// TypePipelineRun is emitted when an analysis pipeline run finishes.
	// Data is PipelineRunData.
	TypePipelineRun Type = "pipeline_run"

	// TypeStageFault is emitted when a pipeline stage degrades to an
	// empty patch. Data is StageFaultData.
	TypeStageFault Type = "stage_fault"

	// TypeDispatch is emitted when a tool invocation starts or finishes.
	// Data is DispatchData.
	TypeDispatch Type = "dispatch"
)

// Event is one engine notification.
//
// Thread Safety: Event structs should be treated as immutable after
// creation.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Type identifies the kind of event.
	Type Type `json:"type"`

	// ConversationID links the event to a conversation.
	ConversationID string `json:"conversation_id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Data contains event-specific data; use the typed data structs.
	Data any `json:"data,omitempty"`
}

// StateUpdatedData is the data for state-updated events.
type StateUpdatedData struct {
	// Source names what produced the update (pipeline stage, lifecycle
	// manager, dispatcher).
	Source string `json:"source"`

	// State is a snapshot of the full conversation state.
	State *datatypes.ConversationState `json:"state"`
}

// CountdownTickData is the data for countdown-tick events.
type CountdownTickData struct {
	// ActionID is the action counting down to auto-execution.
	ActionID string `json:"action_id"`

	// SecondsRemaining is the whole seconds left before dispatch.
	SecondsRemaining int `json:"seconds_remaining"`
}

// ActionResolvedData is the data for action-resolved events.
type ActionResolvedData struct {
	// ActionID is the resolved action.
	ActionID string `json:"action_id"`

	// FinalStatus is the terminal lifecycle status.
	FinalStatus datatypes.ActionStatus `json:"final_status"`

	// Interaction records how the action was resolved.
	Interaction datatypes.UserInteraction `json:"interaction"`

	// Reason carries the dismissal or invalidation reason, if any.
	Reason string `json:"reason,omitempty"`
}

// PipelineRunData is the data for pipeline-run events.
type PipelineRunData struct {
	// Trigger is why the run fired: "debounce" or "max_wait".
	Trigger string `json:"trigger"`

	// MessageCount is the transcript size at run time.
	MessageCount int `json:"message_count"`

	// StageFaults is how many stages degraded this run.
	StageFaults int `json:"stage_faults"`

	// Duration is how long the full run took.
	Duration time.Duration `json:"duration"`
}

// StageFaultData is the data for stage-fault events.
type StageFaultData struct {
	// Stage is the failing stage's name.
	Stage string `json:"stage"`

	// Error is the failure message.
	Error string `json:"error"`
}

// DispatchData is the data for dispatch events.
type DispatchData struct {
	// ActionID is the action being executed.
	ActionID string `json:"action_id"`

	// ToolName is the tool being invoked.
	ToolName string `json:"tool_name"`

	// Phase is "started", "completed", "failed", or "retrying".
	Phase string `json:"phase"`

	// OverriddenParams lists parameter keys where the customer profile
	// overrode the action's proposed value.
	OverriddenParams []string `json:"overridden_params,omitempty"`

	// Duration is set on completion/failure.
	Duration time.Duration `json:"duration,omitempty"`

	// Error is set on failure.
	Error string `json:"error,omitempty"`
}
