// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package actions

import (
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to datatypes.ActionStatus
		want     bool
	}{
		{datatypes.StatusSuggested, datatypes.StatusConfirmed, true},
		{datatypes.StatusSuggested, datatypes.StatusDismissed, true},
		{datatypes.StatusSuggested, datatypes.StatusInvalidated, true},
		{datatypes.StatusSuggested, datatypes.StatusExecuting, true}, // auto-execution
		{datatypes.StatusSuggested, datatypes.StatusCompleted, false},
		{datatypes.StatusConfirmed, datatypes.StatusExecuting, true},
		{datatypes.StatusConfirmed, datatypes.StatusSuggested, false},
		{datatypes.StatusExecuting, datatypes.StatusCompleted, true},
		{datatypes.StatusExecuting, datatypes.StatusFailed, true},
		{datatypes.StatusExecuting, datatypes.StatusDismissed, true},
		{datatypes.StatusExecuting, datatypes.StatusSuggested, false},
		// Terminal states are final.
		{datatypes.StatusCompleted, datatypes.StatusExecuting, false},
		{datatypes.StatusFailed, datatypes.StatusSuggested, false},
		{datatypes.StatusDismissed, datatypes.StatusConfirmed, false},
		{datatypes.StatusInvalidated, datatypes.StatusSuggested, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransitionAppliesFields(t *testing.T) {
	a := &datatypes.ExecutableAction{ID: "a1", Status: datatypes.StatusSuggested}

	if err := Transition(a, datatypes.StatusDismissed, "user_cancel", 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Status != datatypes.StatusDismissed {
		t.Errorf("Status = %v", a.Status)
	}
	if a.StatusReason != "user_cancel" {
		t.Errorf("StatusReason = %q", a.StatusReason)
	}
	if a.UpdatedAt != 42 {
		t.Errorf("UpdatedAt = %d", a.UpdatedAt)
	}
}

func TestTransitionRejectsInvalidMove(t *testing.T) {
	a := &datatypes.ExecutableAction{ID: "a1", Status: datatypes.StatusCompleted}

	err := Transition(a, datatypes.StatusExecuting, "", 1)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	// The action is untouched on rejection.
	if a.Status != datatypes.StatusCompleted || a.UpdatedAt != 0 {
		t.Errorf("action mutated on invalid transition: %+v", a)
	}
}

func TestPolicyEvaluate(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name          string
		action        datatypes.ExecutableAction
		toolThreshold int
		want          Disposition
	}{
		{
			"auto path",
			datatypes.ExecutableAction{Confidence: 96, RiskLevel: datatypes.RiskLow},
			0,
			DispositionAutoExecute,
		},
		{
			"high confidence but high risk",
			datatypes.ExecutableAction{Confidence: 99, RiskLevel: datatypes.RiskHigh, RequiresConfirmation: true},
			0,
			DispositionConfirm,
		},
		{
			"high confidence but flagged for confirmation",
			datatypes.ExecutableAction{Confidence: 99, RiskLevel: datatypes.RiskLow, RequiresConfirmation: true},
			0,
			DispositionConfirm,
		},
		{
			"confirm band",
			datatypes.ExecutableAction{Confidence: 88, RiskLevel: datatypes.RiskLow},
			0,
			DispositionConfirm,
		},
		{
			"medium risk below band",
			datatypes.ExecutableAction{Confidence: 72, RiskLevel: datatypes.RiskMedium, RequiresConfirmation: true},
			0,
			DispositionConfirm,
		},
		{
			"review only",
			datatypes.ExecutableAction{Confidence: 74, RiskLevel: datatypes.RiskLow},
			0,
			DispositionReview,
		},
		{
			"tool threshold above global floor blocks auto",
			datatypes.ExecutableAction{Confidence: 96, RiskLevel: datatypes.RiskLow},
			99,
			DispositionConfirm,
		},
		{
			"tool threshold met",
			datatypes.ExecutableAction{Confidence: 99, RiskLevel: datatypes.RiskLow},
			99,
			DispositionAutoExecute,
		},
		{
			"tool threshold below global floor does not loosen it",
			datatypes.ExecutableAction{Confidence: 90, RiskLevel: datatypes.RiskLow},
			80,
			DispositionConfirm,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Evaluate(&tt.action, tt.toolThreshold); got != tt.want {
				t.Errorf("Evaluate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyNeverAutoExecutesHighRisk(t *testing.T) {
	p := DefaultPolicy()
	a := &datatypes.ExecutableAction{Confidence: 100, RiskLevel: datatypes.RiskHigh, RequiresConfirmation: true}
	if p.ShouldAutoExecute(a, 0) {
		t.Error("high risk must never auto-execute, regardless of confidence")
	}
}
