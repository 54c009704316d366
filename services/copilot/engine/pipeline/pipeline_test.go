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
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
)

// fakeSource is an in-memory StateSource recording applied patches.
type fakeSource struct {
	mu      sync.Mutex
	state   *datatypes.ConversationState
	applied []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{state: datatypes.NewConversationState("conv-1", time.Unix(0, 0))}
}

func (f *fakeSource) Snapshot() *datatypes.ConversationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

func (f *fakeSource) Apply(source string, patch *datatypes.StatePatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, source)
	f.state.AddIntents(patch.Intents)
	f.state.Profile.Merge(patch.ProfileDelta)
}

// syntheticStage is a scripted Stage for exercising pipeline mechanics.
type syntheticStage struct {
	name  string
	patch *datatypes.StatePatch
	err   error
	sleep time.Duration
	seen  *datatypes.ConversationState
}

func (s *syntheticStage) Name() string { return s.name }

func (s *syntheticStage) Execute(ctx context.Context, snap *datatypes.ConversationState) (*datatypes.StatePatch, error) {
	s.seen = snap
	if s.sleep > 0 {
		select {
		case <-time.After(s.sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.patch, nil
}

func TestRunAppliesStagesInOrder(t *testing.T) {
	src := newFakeSource()
	stages := []Stage{
		&syntheticStage{name: "first", patch: &datatypes.StatePatch{Intents: []string{"check_availability"}}},
		&syntheticStage{name: "second", patch: &datatypes.StatePatch{ProfileDelta: &datatypes.CustomerProfile{PartySize: 4}}},
	}
	p := NewForStages(stages)

	report := p.Run(context.Background(), src, nil)
	if report.StageFaults != 0 {
		t.Fatalf("StageFaults = %d, want 0", report.StageFaults)
	}
	if len(src.applied) != 2 || src.applied[0] != "first" || src.applied[1] != "second" {
		t.Fatalf("applied = %v", src.applied)
	}

	// The second stage must see the first stage's patch in its snapshot.
	second := stages[1].(*syntheticStage)
	if !second.seen.HasIntent("check_availability") {
		t.Error("second stage snapshot missing first stage's intent")
	}
}

func TestRunIsolatesStageFaults(t *testing.T) {
	src := newFakeSource()
	boom := errors.New("backend unavailable")
	stages := []Stage{
		&syntheticStage{name: "first", patch: &datatypes.StatePatch{Intents: []string{"a"}}},
		&syntheticStage{name: "broken", err: boom},
		&syntheticStage{name: "third", patch: &datatypes.StatePatch{Intents: []string{"b"}}},
	}
	p := NewForStages(stages)

	var faults []string
	report := p.Run(context.Background(), src, func(stage string, err error) {
		faults = append(faults, stage)
		if !errors.Is(err, boom) {
			t.Errorf("fault error = %v, want wrapped backend error", err)
		}
	})

	if report.StageFaults != 1 {
		t.Fatalf("StageFaults = %d, want 1", report.StageFaults)
	}
	if len(faults) != 1 || faults[0] != "broken" {
		t.Fatalf("faults = %v", faults)
	}

	// Stages before and after the failure both applied.
	if !src.state.HasIntent("a") || !src.state.HasIntent("b") {
		t.Errorf("state intents = %v, want both healthy stages applied", src.state.DetectedIntents)
	}
}

func TestRunStageTimeoutIsAFault(t *testing.T) {
	src := newFakeSource()
	stages := []Stage{
		&syntheticStage{name: "slow", sleep: time.Second, patch: &datatypes.StatePatch{Intents: []string{"never"}}},
	}
	p := NewForStages(stages, WithStageTimeout(10*time.Millisecond))

	report := p.Run(context.Background(), src, nil)
	if report.StageFaults != 1 {
		t.Fatalf("StageFaults = %d, want 1 for timed-out stage", report.StageFaults)
	}
	if src.state.HasIntent("never") {
		t.Error("timed-out stage's patch must not apply")
	}
}

func TestStageNames(t *testing.T) {
	p := NewForStages([]Stage{
		&syntheticStage{name: "x"},
		&syntheticStage{name: "y"},
	})
	names := p.StageNames()
	if len(names) != 2 || names[0] != "x" || names[1] != "y" {
		t.Errorf("StageNames = %v", names)
	}
}
