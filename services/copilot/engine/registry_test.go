// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/pipeline"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/timing"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/toolcat"
)

func testFactory(clock *timing.ManualClock) Factory {
	return func(conversationID string) *Engine {
		return New(conversationID, nil, &okToolClient{}, toolcat.DefaultCatalog(), DefaultConfig(),
			WithClock(clock),
			WithPipeline(pipeline.NewForStages([]pipeline.Stage{
				&scriptedStage{name: "noop", patch: datatypes.EmptyPatch},
			})),
		)
	}
}

func TestRegistryGetOrCreate(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	r := NewRegistry(testFactory(clock), clock, 0)
	defer r.Close()

	a := r.GetOrCreate("conv-1")
	b := r.GetOrCreate("conv-1")
	if a != b {
		t.Error("GetOrCreate returned distinct engines for the same ID")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}

	r.GetOrCreate("conv-2")
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	ids := r.IDs()
	if len(ids) != 2 {
		t.Errorf("IDs = %v", ids)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	r := NewRegistry(testFactory(clock), clock, 0)
	defer r.Close()

	if _, ok := r.Get("missing"); ok {
		t.Error("Get returned an engine for an unknown ID")
	}
}

func TestRegistryRemove(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	r := NewRegistry(testFactory(clock), clock, 0)
	defer r.Close()

	r.GetOrCreate("conv-1")
	if err := r.Remove("conv-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d after remove", r.Len())
	}

	err := r.Remove("conv-1")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestRegistrySweepRetiresIdleConversations(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	r := NewRegistry(testFactory(clock), clock, 5*time.Minute)
	defer r.Close()

	r.GetOrCreate("stale")
	clock.Advance(4 * time.Minute) // sweeps at 1m..4m find nothing idle yet

	active := r.GetOrCreate("active")
	active.SubmitUtterance(datatypes.SpeakerCustomer, "hello")

	// Past the idle threshold for "stale"; "active" was touched at 4m.
	clock.Advance(2 * time.Minute)

	if _, ok := r.Get("stale"); ok {
		t.Error("idle conversation not retired")
	}
	if _, ok := r.Get("active"); !ok {
		t.Error("active conversation was retired")
	}
}

func TestRegistryCloseShutsDownEngines(t *testing.T) {
	clock := timing.NewManualClock(time.Unix(0, 0))
	r := NewRegistry(testFactory(clock), clock, time.Minute)

	r.GetOrCreate("conv-1")
	r.Close()

	if r.Len() != 0 {
		t.Errorf("Len = %d after close", r.Len())
	}
	// The sweep timer is stopped: advancing must not panic or revive it.
	clock.Advance(10 * time.Minute)
}
