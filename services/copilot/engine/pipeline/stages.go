// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/inference"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/toolcat"
)

// Stage is one analysis pipeline stage: a pure function from a state
// snapshot to a partial state patch.
//
// Thread Safety: Implementations must be safe for concurrent use; the
// pipeline serializes execution per conversation, but one Stage value
// is shared across conversations.
type Stage interface {
	// Name returns the stage name used in logs, events, and metrics.
	Name() string

	// Execute produces a patch from the snapshot. A non-nil error means
	// the stage degraded; the pipeline substitutes an empty patch and
	// continues.
	Execute(ctx context.Context, snap *datatypes.ConversationState) (*datatypes.StatePatch, error)
}

// Stage post-filter constants. These are engine policy, enforced here
// regardless of what the inference backend returns.
const (
	// MinActionConfidence suppresses candidates below this confidence.
	MinActionConfidence = 70

	// MaxSurfacedActions caps candidates per run.
	MaxSurfacedActions = 2

	// MaxSurfacedScripts caps quick scripts per run.
	MaxSurfacedScripts = 3

	// extractionWindow is how many recent messages stage 1 sees.
	extractionWindow = 5
)

var stageTemperature = float32(0.2)

func stageParams(maxTokens int) inference.GenerationParams {
	return inference.GenerationParams{
		Temperature: &stageTemperature,
		MaxTokens:   &maxTokens,
	}
}

// =============================================================================
// Stage 1: Intent & Entity Extraction
// =============================================================================

type extractionResponse struct {
	Intents []string                    `json:"intents"`
	Profile *datatypes.CustomerProfile  `json:"profile"`
}

type extractionStage struct {
	client inference.Client
}

func (s *extractionStage) Name() string { return "extraction" }

func (s *extractionStage) Execute(ctx context.Context, snap *datatypes.ConversationState) (*datatypes.StatePatch, error) {
	messages := snap.RecentMessages(extractionWindow)
	if len(messages) == 0 {
		return datatypes.EmptyPatch(), nil
	}

	raw, err := s.client.Generate(ctx, extractionPrompt(messages), stageParams(512))
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	decoded := Decode[extractionResponse](raw)
	if decoded.Outcome != DecodeOK {
		return nil, fmt.Errorf("extraction response unusable: %w", decoded.Err)
	}

	return &datatypes.StatePatch{
		Intents:      decoded.Value.Intents,
		ProfileDelta: decoded.Value.Profile,
	}, nil
}

// =============================================================================
// Stage 2: Stage Management
// =============================================================================

type wireStage struct {
	ID     string `json:"id" validate:"required"`
	Label  string `json:"label" validate:"required"`
	Status string `json:"status" validate:"required,oneof=completed current future"`
}

type stageResponse struct {
	Stages         []wireStage `json:"stages" validate:"dive"`
	CurrentStageID string      `json:"current_stage_id"`
}

type stageManagementStage struct {
	client inference.Client
}

func (s *stageManagementStage) Name() string { return "stage_management" }

func (s *stageManagementStage) Execute(ctx context.Context, snap *datatypes.ConversationState) (*datatypes.StatePatch, error) {
	if len(snap.Messages) == 0 {
		return datatypes.EmptyPatch(), nil
	}

	raw, err := s.client.Generate(ctx, stagePrompt(snap), stageParams(512))
	if err != nil {
		return nil, fmt.Errorf("stage management call failed: %w", err)
	}

	decoded := Decode[stageResponse](raw)
	if decoded.Outcome != DecodeOK {
		return nil, fmt.Errorf("stage management response unusable: %w", decoded.Err)
	}
	if len(decoded.Value.Stages) == 0 {
		return datatypes.EmptyPatch(), nil
	}

	stages := make([]datatypes.Stage, 0, len(decoded.Value.Stages))
	for _, ws := range decoded.Value.Stages {
		stages = append(stages, datatypes.Stage{
			ID:     ws.ID,
			Label:  ws.Label,
			Status: datatypes.StageStatus(ws.Status),
		})
	}

	// The reducer enforces the frozen-completed invariant; the patch
	// just carries the proposal.
	return &datatypes.StatePatch{
		Stages:         stages,
		CurrentStageID: decoded.Value.CurrentStageID,
	}, nil
}

// =============================================================================
// Stage 3: Action / Insight / Script Generation
// =============================================================================

type wireAction struct {
	Intent      string         `json:"intent"`
	Label       string         `json:"label" validate:"required"`
	Description string         `json:"description"`
	ToolName    string         `json:"tool_name" validate:"required"`
	Parameters  map[string]any `json:"parameters"`
	Confidence  int            `json:"confidence"`
	Priority    int            `json:"priority"`
}

type wireScript struct {
	Label string `json:"label"`
	Text  string `json:"text" validate:"required"`
}

type wireInsight struct {
	HealthScore int      `json:"health_score"`
	Concerns    []string `json:"concerns"`
	Strengths   []string `json:"strengths"`
	MissingInfo []string `json:"missing_info"`
}

type actionResponse struct {
	Actions []wireAction `json:"actions" validate:"dive"`
	Scripts []wireScript `json:"scripts" validate:"dive"`
	Insight *wireInsight `json:"insight"`
}

type actionStage struct {
	client  inference.Client
	catalog *toolcat.Catalog
	now     func() time.Time
}

func (s *actionStage) Name() string { return "action_generation" }

func (s *actionStage) Execute(ctx context.Context, snap *datatypes.ConversationState) (*datatypes.StatePatch, error) {
	if len(snap.DetectedIntents) == 0 && len(snap.Messages) < 2 {
		return datatypes.EmptyPatch(), nil
	}

	prompt, err := actionPrompt(snap, s.catalog.PromptSummary())
	if err != nil {
		return nil, fmt.Errorf("action prompt build failed: %w", err)
	}

	raw, err := s.client.Generate(ctx, prompt, stageParams(1024))
	if err != nil {
		return nil, fmt.Errorf("action generation call failed: %w", err)
	}

	decoded := Decode[actionResponse](raw)
	if decoded.Outcome != DecodeOK {
		return nil, fmt.Errorf("action generation response unusable: %w", decoded.Err)
	}

	patch := &datatypes.StatePatch{
		CandidateActions: s.buildCandidates(decoded.Value.Actions),
		Scripts:          buildScripts(decoded.Value.Scripts),
	}
	if ins := decoded.Value.Insight; ins != nil {
		patch.Insight = &datatypes.ConversationInsight{
			HealthScore: clampScore(ins.HealthScore),
			Concerns:    ins.Concerns,
			Strengths:   ins.Strengths,
			MissingInfo: ins.MissingInfo,
		}
	}
	return patch, nil
}

// buildCandidates applies the engine-side safety filters the inference
// backend cannot be trusted to apply itself: confidence clamping, the
// minimum-confidence cut, catalog grounding for risk, descending sort,
// and the surfacing cap.
func (s *actionStage) buildCandidates(wires []wireAction) []*datatypes.ExecutableAction {
	now := s.now().UnixMilli()

	candidates := make([]*datatypes.ExecutableAction, 0, len(wires))
	for _, wa := range wires {
		spec, ok := s.catalog.Get(wa.ToolName)
		if !ok {
			// Proposed tool does not exist; the action is unactionable.
			continue
		}

		confidence := datatypes.ClampConfidence(wa.Confidence)
		if confidence < MinActionConfidence {
			continue
		}

		risk := datatypes.RiskLevel(spec.RiskLevel)
		candidates = append(candidates, &datatypes.ExecutableAction{
			ID:                   uuid.NewString(),
			Intent:               wa.Intent,
			Label:                wa.Label,
			Description:          wa.Description,
			ToolName:             wa.ToolName,
			Parameters:           wa.Parameters,
			Confidence:           confidence,
			Priority:             wa.Priority,
			RiskLevel:            risk,
			RequiresConfirmation: risk != datatypes.RiskLow,
			Status:               datatypes.StatusSuggested,
			CreatedAt:            now,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Priority > candidates[j].Priority
	})

	if len(candidates) > MaxSurfacedActions {
		candidates = candidates[:MaxSurfacedActions]
	}
	return candidates
}

func buildScripts(wires []wireScript) []datatypes.QuickScript {
	scripts := make([]datatypes.QuickScript, 0, len(wires))
	for _, ws := range wires {
		if ws.Text == "" {
			continue
		}
		scripts = append(scripts, datatypes.QuickScript{
			ID:    uuid.NewString(),
			Label: ws.Label,
			Text:  ws.Text,
		})
		if len(scripts) == MaxSurfacedScripts {
			break
		}
	}
	return scripts
}

// =============================================================================
// Stage 4: Health Scoring
// =============================================================================

type healthResponse struct {
	HealthScore int `json:"health_score" validate:"min=0,max=100"`
}

type healthStage struct {
	client inference.Client
}

func (s *healthStage) Name() string { return "health_scoring" }

func (s *healthStage) Execute(ctx context.Context, snap *datatypes.ConversationState) (*datatypes.StatePatch, error) {
	if len(snap.Messages) < datatypes.MinMessagesForHealth {
		// Too little material to score; the default stands.
		return datatypes.EmptyPatch(), nil
	}

	raw, err := s.client.Generate(ctx, healthPrompt(snap), stageParams(64))
	if err != nil {
		return nil, fmt.Errorf("health scoring call failed: %w", err)
	}

	decoded := Decode[healthResponse](raw)
	if decoded.Outcome != DecodeOK {
		return nil, fmt.Errorf("health scoring response unusable: %w", decoded.Err)
	}

	score := clampScore(decoded.Value.HealthScore)
	return &datatypes.StatePatch{HealthScore: &score}, nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
