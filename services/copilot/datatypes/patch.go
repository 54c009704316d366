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

// StatePatch is a partial update produced by one pipeline stage or by
// the action lifecycle manager. Patches are merged into ConversationState
// sequentially by the engine's reducer; a stage that fails produces an
// empty patch so state never goes backwards.
type StatePatch struct {
	// Intents are newly detected intents (merged into the set).
	Intents []string `json:"intents,omitempty"`

	// ProfileDelta carries extracted profile fields (scalar overwrite,
	// array append + dedupe).
	ProfileDelta *CustomerProfile `json:"profile_delta,omitempty"`

	// Stages, when non-nil, is the revised full stage list. The reducer
	// refuses to un-complete previously completed stages.
	Stages []Stage `json:"stages,omitempty"`

	// CurrentStageID moves the stage pointer when non-empty.
	CurrentStageID string `json:"current_stage_id,omitempty"`

	// CandidateActions are stage-3 proposals, pre-policy. The lifecycle
	// manager decides which of these are surfaced and how.
	CandidateActions []*ExecutableAction `json:"candidate_actions,omitempty"`

	// Scripts replaces the suggested quick scripts when non-nil.
	Scripts []QuickScript `json:"scripts,omitempty"`

	// Insight replaces the conversation insight when non-nil.
	Insight *ConversationInsight `json:"insight,omitempty"`

	// HealthScore updates only the health score when non-nil. Used by
	// the dedicated health stage, which must not clobber stage-3 concerns.
	HealthScore *int `json:"health_score,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p *StatePatch) IsEmpty() bool {
	if p == nil {
		return true
	}
	return len(p.Intents) == 0 &&
		p.ProfileDelta == nil &&
		p.Stages == nil &&
		p.CurrentStageID == "" &&
		len(p.CandidateActions) == 0 &&
		p.Scripts == nil &&
		p.Insight == nil &&
		p.HealthScore == nil
}

// EmptyPatch is the degraded result of a failed stage.
func EmptyPatch() *StatePatch {
	return &StatePatch{}
}
