// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package actions

import (
	"time"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
)

// Policy defaults. Auto-execution is deliberately narrow: only very
// high confidence, only low risk, never anything flagged for
// confirmation.
const (
	// DefaultAutoExecuteConfidence is the floor for unattended execution.
	DefaultAutoExecuteConfidence = 95

	// DefaultConfirmConfidence is the floor for one-click confirmation;
	// below it the action is surfaced for review only.
	DefaultConfirmConfidence = 85

	// DefaultCountdown is the cancellation window before auto-execution.
	DefaultCountdown = 3 * time.Second
)

// Disposition is the policy's verdict on a freshly surfaced action.
type Disposition string

const (
	// DispositionAutoExecute starts the cancellable countdown.
	DispositionAutoExecute Disposition = "auto_execute"

	// DispositionConfirm surfaces the action for one-click approval.
	DispositionConfirm Disposition = "confirm"

	// DispositionReview surfaces the action with no execution shortcut.
	DispositionReview Disposition = "review"
)

// Policy gates which surfaced actions may execute without the operator.
//
// Thread Safety: Policy is an immutable value; safe for concurrent use.
type Policy struct {
	// AutoExecuteConfidence is the minimum confidence for auto-execution.
	AutoExecuteConfidence int

	// ConfirmConfidence is the minimum confidence for the confirm band.
	ConfirmConfidence int

	// Countdown is how long auto-execution remains cancellable.
	Countdown time.Duration
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{
		AutoExecuteConfidence: DefaultAutoExecuteConfidence,
		ConfirmConfidence:     DefaultConfirmConfidence,
		Countdown:             DefaultCountdown,
	}
}

// Evaluate classifies a surfaced action.
//
// Description:
//
//	Auto-execution requires all three of: confidence at or above the
//	auto floor, low risk, and no confirmation flag. High risk never
//	auto-executes no matter the confidence. Everything else lands in
//	the confirm band (confidence >= ConfirmConfidence, or medium risk)
//	or plain review.
//
// Inputs:
//
//	a - The surfaced action.
//	toolThreshold - The catalog entry's per-tool auto-execution
//	  threshold. When higher than the policy floor it wins; pass 0 for
//	  tools without one.
func (p Policy) Evaluate(a *datatypes.ExecutableAction, toolThreshold int) Disposition {
	if p.ShouldAutoExecute(a, toolThreshold) {
		return DispositionAutoExecute
	}
	if a.Confidence >= p.ConfirmConfidence || a.RiskLevel == datatypes.RiskMedium {
		return DispositionConfirm
	}
	return DispositionReview
}

// ShouldAutoExecute reports whether the action qualifies for the
// unattended path. The effective confidence floor is the stricter of
// the global policy floor and the tool's own catalog threshold.
func (p Policy) ShouldAutoExecute(a *datatypes.ExecutableAction, toolThreshold int) bool {
	floor := p.AutoExecuteConfidence
	if toolThreshold > floor {
		floor = toolThreshold
	}
	return a.Confidence >= floor &&
		a.RiskLevel == datatypes.RiskLow &&
		!a.RequiresConfirmation
}
