// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package actions manages the lifecycle of executable actions: the
// status state machine, the auto-execution policy with its cancellable
// countdown, staleness invalidation, and the append-only history.
package actions

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
)

// ErrInvalidTransition is returned when a requested status change is not
// in the lifecycle machine. Invalid transitions are rejected, never
// silently coerced.
var ErrInvalidTransition = errors.New("invalid action status transition")

// validTransitions is the lifecycle machine. suggested -> executing is
// reachable only through the auto-execution policy; operator confirmation
// always passes through confirmed.
var validTransitions = map[datatypes.ActionStatus][]datatypes.ActionStatus{
	datatypes.StatusSuggested: {
		datatypes.StatusConfirmed,
		datatypes.StatusDismissed,
		datatypes.StatusInvalidated,
		datatypes.StatusExecuting,
	},
	datatypes.StatusConfirmed: {
		datatypes.StatusExecuting,
	},
	datatypes.StatusExecuting: {
		datatypes.StatusCompleted,
		datatypes.StatusFailed,
		datatypes.StatusDismissed,
	},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to datatypes.ActionStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves an action to a new status.
//
// Description:
//
//	Applies the status change, the reason, and the UpdatedAt timestamp
//	atomically on the action value. Terminal states are final: no
//	transition leaves completed, failed, dismissed, or invalidated.
//
// Inputs:
//
//	a - The action to move. Must not be nil.
//	to - The target status.
//	reason - Human-readable reason for the change. May be empty.
//	nowMs - Current time in Unix milliseconds.
//
// Outputs:
//
//	error - ErrInvalidTransition (wrapped with the from/to pair) if the
//	  move is not in the machine; nil on success.
func Transition(a *datatypes.ExecutableAction, to datatypes.ActionStatus, reason string, nowMs int64) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s (action %s)", ErrInvalidTransition, a.Status, to, a.ID)
	}
	a.Status = to
	a.StatusReason = reason
	a.UpdatedAt = nowMs
	return nil
}
