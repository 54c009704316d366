// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
)

// reduce merges a stage patch into state.
//
// Description:
//
//	Intents merge into the detected set. Profile deltas apply with
//	scalar overwrite and array append + dedupe. Stage proposals pass
//	through the frozen-completed rules below. Scripts and insight
//	replace wholesale; a bare health score updates only that field.
//	Candidate actions are NOT applied here: they go through the action
//	lifecycle manager, which owns policy and staleness.
func reduce(state *datatypes.ConversationState, patch *datatypes.StatePatch) {
	if patch == nil {
		return
	}

	state.AddIntents(patch.Intents)
	state.Profile.Merge(patch.ProfileDelta)

	if patch.Stages != nil || patch.CurrentStageID != "" {
		reduceStages(state, patch.Stages, patch.CurrentStageID)
	}

	if patch.Scripts != nil {
		state.Scripts = patch.Scripts
	}
	if patch.Insight != nil {
		// Keep the last health score if the insight arrived without one;
		// stage 4 is the authority on that number.
		if patch.Insight.HealthScore == 0 {
			patch.Insight.HealthScore = state.Insight.HealthScore
		}
		state.Insight = *patch.Insight
	}
	if patch.HealthScore != nil {
		state.Insight.HealthScore = *patch.HealthScore
	}
}

// reduceStages applies a proposed stage list under the append-only and
// frozen-completed invariants.
//
// Description:
//
//	Existing stages are never removed or reordered. A stage the
//	proposal marks completed becomes completed; a stage already
//	completed ignores whatever the proposal says about it. Unknown
//	proposed stages append in proposal order. The current pointer moves
//	only to a stage that exists and is not completed, and afterwards
//	exactly one stage holds the current status.
func reduceStages(state *datatypes.ConversationState, proposed []datatypes.Stage, currentID string) {
	index := make(map[string]int, len(state.Stages))
	for i, st := range state.Stages {
		index[st.ID] = i
	}

	for _, p := range proposed {
		i, exists := index[p.ID]
		if !exists {
			state.Stages = append(state.Stages, p)
			index[p.ID] = len(state.Stages) - 1
			continue
		}
		if state.Stages[i].Status == datatypes.StageCompleted {
			continue
		}
		state.Stages[i].Label = p.Label
		state.Stages[i].Status = p.Status
	}

	if currentID != "" {
		if i, ok := index[currentID]; ok && state.Stages[i].Status != datatypes.StageCompleted {
			state.CurrentStageID = currentID
		}
	}

	// Normalize: the current pointer wins; everything else not completed
	// is future.
	sawCurrent := false
	for i := range state.Stages {
		if state.Stages[i].Status == datatypes.StageCompleted {
			continue
		}
		if state.Stages[i].ID == state.CurrentStageID {
			state.Stages[i].Status = datatypes.StageCurrent
			sawCurrent = true
		} else {
			state.Stages[i].Status = datatypes.StageFuture
		}
	}

	// The pointed-at stage may itself have just completed. Fall forward
	// to the first open stage so exactly one stage stays current.
	if !sawCurrent {
		for i := range state.Stages {
			if state.Stages[i].Status != datatypes.StageCompleted {
				state.Stages[i].Status = datatypes.StageCurrent
				state.CurrentStageID = state.Stages[i].ID
				break
			}
		}
	}
}
