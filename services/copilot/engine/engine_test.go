// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/events"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/pipeline"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/timing"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/toolcat"
)

// scriptedStage is a synthetic pipeline stage for integration tests.
type scriptedStage struct {
	name  string
	patch func() *datatypes.StatePatch
	err   error
}

func (s *scriptedStage) Name() string { return s.name }

func (s *scriptedStage) Execute(ctx context.Context, snap *datatypes.ConversationState) (*datatypes.StatePatch, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.patch(), nil
}

// okToolClient always succeeds.
type okToolClient struct {
	mu    sync.Mutex
	calls int
}

func (c *okToolClient) Invoke(ctx context.Context, toolName string, params map[string]any) (*toolcat.InvocationResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return &toolcat.InvocationResult{Success: true, Summary: "done"}, nil
}

type eventWaiter struct {
	ch chan *events.Event
}

func waitOn(e *Engine, types ...events.Type) *eventWaiter {
	w := &eventWaiter{ch: make(chan *events.Event, 32)}
	e.Events().Subscribe(func(ev *events.Event) {
		select {
		case w.ch <- ev:
		default:
		}
	}, types...)
	return w
}

func (w *eventWaiter) next(t *testing.T) *events.Event {
	t.Helper()
	select {
	case ev := <-w.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func newTestEngine(t *testing.T, clock *timing.ManualClock, stages ...pipeline.Stage) *Engine {
	t.Helper()
	e := New("conv-1", nil, &okToolClient{}, toolcat.DefaultCatalog(), DefaultConfig(),
		WithClock(clock),
		WithPipeline(pipeline.NewForStages(stages)),
	)
	t.Cleanup(e.Close)
	return e
}

func TestSubmitUtteranceAppendsTranscript(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	e := newTestEngine(t, clock, &scriptedStage{name: "noop", patch: datatypes.EmptyPatch})

	e.SubmitUtterance(datatypes.SpeakerCustomer, "hello there")
	e.SubmitUtterance(datatypes.SpeakerAgent, "hi, how can I help?")

	snap := e.Snapshot()
	if len(snap.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(snap.Messages))
	}
	if snap.Messages[0].Speaker != datatypes.SpeakerCustomer {
		t.Errorf("first speaker = %v", snap.Messages[0].Speaker)
	}
}

func TestPipelineRunAppliesPatchesAndSurfacesCandidates(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	stage := &scriptedStage{
		name: "analysis",
		patch: func() *datatypes.StatePatch {
			return &datatypes.StatePatch{
				Intents: []string{"check_availability"},
				CandidateActions: []*datatypes.ExecutableAction{{
					ID:         "a1",
					Intent:     "check_availability",
					Label:      "Check availability",
					ToolName:   "check_availability",
					Confidence: 80,
					RiskLevel:  datatypes.RiskLow,
					Status:     datatypes.StatusSuggested,
				}},
			}
		},
	}
	e := newTestEngine(t, clock, stage)
	runs := waitOn(e, events.TypePipelineRun)

	e.SubmitUtterance(datatypes.SpeakerCustomer, "anything open in May?")
	clock.Advance(5 * time.Second)
	runs.next(t)

	snap := e.Snapshot()
	if !snap.HasIntent("check_availability") {
		t.Error("stage patch not applied")
	}
	if len(snap.Actions) != 1 || snap.Actions[0].Status != datatypes.StatusSuggested {
		t.Fatalf("Actions = %+v, want a1 suggested", snap.Actions)
	}
}

func TestConfirmActionRunsToCompletion(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	stage := &scriptedStage{
		name: "analysis",
		patch: func() *datatypes.StatePatch {
			return &datatypes.StatePatch{
				CandidateActions: []*datatypes.ExecutableAction{{
					ID:         "a1",
					Intent:     "check_availability",
					Label:      "Check availability",
					ToolName:   "check_availability",
					Confidence: 80,
					RiskLevel:  datatypes.RiskLow,
					Status:     datatypes.StatusSuggested,
				}},
			}
		},
	}
	e := newTestEngine(t, clock, stage)
	runs := waitOn(e, events.TypePipelineRun)
	resolved := waitOn(e, events.TypeActionResolved)

	e.SubmitUtterance(datatypes.SpeakerCustomer, "anything open in May?")
	clock.Advance(5 * time.Second)
	runs.next(t)

	if err := e.ConfirmAction("a1"); err != nil {
		t.Fatalf("ConfirmAction: %v", err)
	}

	ev := resolved.next(t)
	data := ev.Data.(events.ActionResolvedData)
	if data.FinalStatus != datatypes.StatusCompleted {
		t.Fatalf("FinalStatus = %v, want completed", data.FinalStatus)
	}

	snap := e.Snapshot()
	if len(snap.History) != 1 || snap.History[0].Interaction != datatypes.InteractionConfirmed {
		t.Errorf("History = %+v", snap.History)
	}
}

func TestConfirmUnknownActionFails(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	e := newTestEngine(t, clock, &scriptedStage{name: "noop", patch: datatypes.EmptyPatch})

	if err := e.ConfirmAction("missing"); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestStageFaultEmitsEvent(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	e := newTestEngine(t, clock, &scriptedStage{name: "broken", err: errors.New("backend down")})
	faults := waitOn(e, events.TypeStageFault)
	runs := waitOn(e, events.TypePipelineRun)

	e.SubmitUtterance(datatypes.SpeakerCustomer, "hello")
	clock.Advance(3 * time.Second)

	ev := faults.next(t)
	data := ev.Data.(events.StageFaultData)
	if data.Stage != "broken" || data.Error == "" {
		t.Errorf("fault = %+v", data)
	}

	run := runs.next(t).Data.(events.PipelineRunData)
	if run.StageFaults != 1 {
		t.Errorf("StageFaults = %d, want 1", run.StageFaults)
	}
}

func TestFlushForcesImmediateRun(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	e := newTestEngine(t, clock, &scriptedStage{name: "noop", patch: datatypes.EmptyPatch})
	runs := waitOn(e, events.TypePipelineRun)

	e.SubmitUtterance(datatypes.SpeakerCustomer, "we want something nice")
	e.Flush()
	runs.next(t)
}

func TestLastActivityTracksUpdates(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	e := newTestEngine(t, clock, &scriptedStage{name: "noop", patch: datatypes.EmptyPatch})

	before := e.LastActivityMs()
	clock.Advance(5 * time.Second)
	e.SubmitUtterance(datatypes.SpeakerCustomer, "hello")

	if got := e.LastActivityMs(); got <= before {
		t.Errorf("LastActivityMs = %d, want > %d", got, before)
	}
}
