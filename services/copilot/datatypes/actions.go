// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// RiskLevel classifies the consequence of executing a tool without
// further human review.
type RiskLevel string

const (
	// RiskLow covers read-only lookups (availability, pricing).
	RiskLow RiskLevel = "low"

	// RiskMedium covers reversible side effects (draft email, hold).
	RiskMedium RiskLevel = "medium"

	// RiskHigh covers hard side effects (booking, charging). High risk
	// always requires explicit confirmation, regardless of confidence.
	RiskHigh RiskLevel = "high"
)

// ActionStatus is a state in the action lifecycle machine.
//
// Valid transitions are enforced by actions.Transition. Invalid
// transitions are rejected, never silently coerced.
type ActionStatus string

const (
	// StatusSuggested is the initial state after policy admits an action.
	StatusSuggested ActionStatus = "suggested"

	// StatusConfirmed means the operator explicitly approved the action.
	StatusConfirmed ActionStatus = "confirmed"

	// StatusExecuting means the action has been handed to the dispatcher.
	StatusExecuting ActionStatus = "executing"

	// StatusCompleted means the tool call succeeded.
	StatusCompleted ActionStatus = "completed"

	// StatusFailed means the tool call failed.
	StatusFailed ActionStatus = "failed"

	// StatusDismissed means the operator declined the action, or
	// cancelled its auto-execution countdown.
	StatusDismissed ActionStatus = "dismissed"

	// StatusInvalidated means a later pipeline run made the action
	// stale. The reason is preserved for the audit trail.
	StatusInvalidated ActionStatus = "invalidated"
)

// IsTerminal reports whether the status ends the action's lifecycle.
func (s ActionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusDismissed, StatusInvalidated:
		return true
	default:
		return false
	}
}

// IsActive reports whether the action is still awaiting resolution.
func (s ActionStatus) IsActive() bool {
	return s == StatusSuggested || s == StatusConfirmed || s == StatusExecuting
}

// UserInteraction records how a resolved action left its active state.
type UserInteraction string

const (
	// InteractionConfirmed means the operator approved execution.
	InteractionConfirmed UserInteraction = "confirmed"

	// InteractionDismissed means the operator declined or cancelled.
	InteractionDismissed UserInteraction = "dismissed"

	// InteractionAutoExecuted means the countdown elapsed uncancelled.
	InteractionAutoExecuted UserInteraction = "auto_executed"

	// InteractionInvalidated means the engine retired the action as stale.
	InteractionInvalidated UserInteraction = "invalidated"
)

// ExecutableAction is one confidence-scored, policy-gated suggestion.
type ExecutableAction struct {
	// ID uniquely identifies the action.
	ID string `json:"id"`

	// Intent is the detected intent that produced this action.
	Intent string `json:"intent"`

	// Label is the short button text (e.g. "Check availability").
	Label string `json:"label"`

	// Description explains what executing the action will do.
	Description string `json:"description,omitempty"`

	// ToolName is the catalog tool this action invokes.
	ToolName string `json:"tool_name"`

	// Parameters are the proposed tool parameters. The customer profile
	// overrides these at dispatch time.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Confidence is the engine-clamped confidence in [0,100]. The raw
	// inference value is untrusted; policy is enforced on this field.
	Confidence int `json:"confidence"`

	// Priority orders actions of equal confidence (higher first).
	Priority int `json:"priority,omitempty"`

	// RiskLevel is copied from the tool catalog entry, never from the
	// inference output.
	RiskLevel RiskLevel `json:"risk_level"`

	// RequiresConfirmation forces explicit operator approval. Always
	// true when RiskLevel is high.
	RequiresConfirmation bool `json:"requires_confirmation"`

	// Status is the current lifecycle state.
	Status ActionStatus `json:"status"`

	// StatusReason is a human-readable reason for the latest status
	// change (e.g. "user_cancel", staleness explanation).
	StatusReason string `json:"status_reason,omitempty"`

	// CreatedAt is when the action was suggested (Unix milliseconds UTC).
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is when the status last changed (Unix milliseconds UTC).
	UpdatedAt int64 `json:"updated_at,omitempty"`

	// Result is the human-readable outcome summary for completed actions.
	Result string `json:"result,omitempty"`

	// Error is the failure message for failed actions.
	Error string `json:"error,omitempty"`
}

// ClampConfidence forces a raw confidence value into [0,100].
//
// Description:
//
//	The inference backend's confidence numbers are external input and
//	arrive out of range often enough to matter. Every action passes
//	through here before any policy decision reads Confidence.
func ClampConfidence(raw int) int {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return raw
}

// ActionHistoryEntry is an immutable snapshot of a resolved action.
// History only grows; entries are never deleted or mutated.
type ActionHistoryEntry struct {
	// ActionID is the resolved action's ID.
	ActionID string `json:"action_id"`

	// Label is the action label at resolution time.
	Label string `json:"label"`

	// ToolName is the tool the action targeted.
	ToolName string `json:"tool_name"`

	// FinalStatus is the terminal lifecycle status.
	FinalStatus ActionStatus `json:"final_status"`

	// Interaction records how the action was resolved.
	Interaction UserInteraction `json:"interaction"`

	// Reason carries the invalidation or dismissal reason, if any.
	Reason string `json:"reason,omitempty"`

	// Result is the outcome summary for completed actions.
	Result string `json:"result,omitempty"`

	// Error is the failure message for failed actions.
	Error string `json:"error,omitempty"`

	// SuggestedAt is when the action was first surfaced (Unix ms UTC).
	SuggestedAt int64 `json:"suggested_at"`

	// ResolvedAt is when the action left its active state (Unix ms UTC).
	ResolvedAt int64 `json:"resolved_at"`
}
