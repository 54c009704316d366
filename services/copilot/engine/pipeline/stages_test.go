// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/inference"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/toolcat"
)

// fakeInference returns a scripted response (or error) for every call.
type fakeInference struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeInference) Generate(ctx context.Context, prompt string, params inference.GenerationParams) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func snapWithMessages(n int) *datatypes.ConversationState {
	snap := datatypes.NewConversationState("conv-1", time.Unix(0, 0))
	for i := 0; i < n; i++ {
		snap.AppendMessage(datatypes.TranscriptMessage{
			Speaker: datatypes.SpeakerCustomer,
			Text:    "hello there",
		})
	}
	return snap
}

// =============================================================================
// Extraction stage
// =============================================================================

func TestExtractionStageSkipsEmptyTranscript(t *testing.T) {
	fake := &fakeInference{}
	s := &extractionStage{client: fake}

	patch, err := s.Execute(context.Background(), snapWithMessages(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !patch.IsEmpty() {
		t.Error("expected empty patch for empty transcript")
	}
	if len(fake.prompts) != 0 {
		t.Error("inference must not be called for an empty transcript")
	}
}

func TestExtractionStageDecodesIntentsAndProfile(t *testing.T) {
	fake := &fakeInference{response: `{"intents":["check_availability"],"profile":{"check_in":"May 28","party_size":4}}`}
	s := &extractionStage{client: fake}

	patch, err := s.Execute(context.Background(), snapWithMessages(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patch.Intents) != 1 || patch.Intents[0] != "check_availability" {
		t.Errorf("Intents = %v", patch.Intents)
	}
	if patch.ProfileDelta == nil || patch.ProfileDelta.CheckIn != "May 28" || patch.ProfileDelta.PartySize != 4 {
		t.Errorf("ProfileDelta = %+v", patch.ProfileDelta)
	}
}

func TestExtractionStageErrorsOnBadResponse(t *testing.T) {
	fake := &fakeInference{response: "I don't know."}
	s := &extractionStage{client: fake}

	if _, err := s.Execute(context.Background(), snapWithMessages(2)); err == nil {
		t.Fatal("expected error for unparseable response")
	}
}

func TestExtractionStagePropagatesBackendError(t *testing.T) {
	boom := errors.New("connection refused")
	s := &extractionStage{client: &fakeInference{err: boom}}

	_, err := s.Execute(context.Background(), snapWithMessages(2))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped backend error", err)
	}
}

// =============================================================================
// Action stage post-filters
// =============================================================================

func testActionStage() *actionStage {
	return &actionStage{
		catalog: toolcat.DefaultCatalog(),
		now:     func() time.Time { return time.Unix(1000, 0) },
	}
}

func TestBuildCandidatesFiltersAndCaps(t *testing.T) {
	s := testActionStage()
	wires := []wireAction{
		{Label: "Check", ToolName: "check_availability", Confidence: 88, Priority: 1},
		{Label: "Quote", ToolName: "generate_quote", Confidence: 92, Priority: 2},
		{Label: "Low conf", ToolName: "check_availability", Confidence: 60},
		{Label: "Ghost", ToolName: "no_such_tool", Confidence: 99},
		{Label: "Email", ToolName: "send_followup_email", Confidence: 75},
	}

	got := s.buildCandidates(wires)
	if len(got) != MaxSurfacedActions {
		t.Fatalf("candidates = %d, want cap %d", len(got), MaxSurfacedActions)
	}
	// Sorted by confidence descending.
	if got[0].Label != "Quote" || got[1].Label != "Check" {
		t.Errorf("order = %q, %q", got[0].Label, got[1].Label)
	}
}

func TestBuildCandidatesClampsConfidence(t *testing.T) {
	s := testActionStage()
	got := s.buildCandidates([]wireAction{
		{Label: "Over", ToolName: "check_availability", Confidence: 250},
	})
	if len(got) != 1 {
		t.Fatalf("candidates = %d, want 1", len(got))
	}
	if got[0].Confidence != 100 {
		t.Errorf("Confidence = %d, want clamped 100", got[0].Confidence)
	}
}

func TestBuildCandidatesGroundsRiskInCatalog(t *testing.T) {
	s := testActionStage()
	got := s.buildCandidates([]wireAction{
		{Label: "Book it", ToolName: "place_booking", Confidence: 99},
		{Label: "Check", ToolName: "check_availability", Confidence: 95},
	})
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2", len(got))
	}

	var booking, check *datatypes.ExecutableAction
	for _, a := range got {
		switch a.ToolName {
		case "place_booking":
			booking = a
		case "check_availability":
			check = a
		}
	}
	if booking == nil || check == nil {
		t.Fatal("missing expected candidates")
	}
	if booking.RiskLevel != datatypes.RiskHigh || !booking.RequiresConfirmation {
		t.Errorf("booking risk = %v confirm = %v, want high/true", booking.RiskLevel, booking.RequiresConfirmation)
	}
	if check.RiskLevel != datatypes.RiskLow || check.RequiresConfirmation {
		t.Errorf("lookup risk = %v confirm = %v, want low/false", check.RiskLevel, check.RequiresConfirmation)
	}
	if booking.Status != datatypes.StatusSuggested {
		t.Errorf("Status = %v, want suggested", booking.Status)
	}
}

func TestBuildScriptsCapsAndSkipsEmpty(t *testing.T) {
	got := buildScripts([]wireScript{
		{Label: "a", Text: "Line one"},
		{Label: "b", Text: ""},
		{Label: "c", Text: "Line two"},
		{Label: "d", Text: "Line three"},
		{Label: "e", Text: "Line four"},
	})
	if len(got) != MaxSurfacedScripts {
		t.Fatalf("scripts = %d, want cap %d", len(got), MaxSurfacedScripts)
	}
	for _, sc := range got {
		if sc.Text == "" {
			t.Error("empty script text surfaced")
		}
		if sc.ID == "" {
			t.Error("script missing ID")
		}
	}
}

// =============================================================================
// Health stage
// =============================================================================

func TestHealthStageSkipsShortConversations(t *testing.T) {
	fake := &fakeInference{response: `{"health_score":10}`}
	s := &healthStage{client: fake}

	patch, err := s.Execute(context.Background(), snapWithMessages(datatypes.MinMessagesForHealth-1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !patch.IsEmpty() {
		t.Error("expected empty patch below the message threshold")
	}
	if len(fake.prompts) != 0 {
		t.Error("inference must not be called below the message threshold")
	}
}

func TestHealthStageScores(t *testing.T) {
	fake := &fakeInference{response: `{"health_score":91}`}
	s := &healthStage{client: fake}

	patch, err := s.Execute(context.Background(), snapWithMessages(datatypes.MinMessagesForHealth))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if patch.HealthScore == nil || *patch.HealthScore != 91 {
		t.Errorf("HealthScore = %v, want 91", patch.HealthScore)
	}
}

func TestHealthStageRejectsOutOfRangeScore(t *testing.T) {
	fake := &fakeInference{response: `{"health_score":140}`}
	s := &healthStage{client: fake}

	if _, err := s.Execute(context.Background(), snapWithMessages(5)); err == nil {
		t.Fatal("expected validation error for out-of-range score")
	}
}
