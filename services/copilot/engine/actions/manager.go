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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/events"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/timing"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/toolcat"
)

// ErrActionNotFound is returned when an action ID does not match any
// currently surfaced action.
var ErrActionNotFound = errors.New("action not found")

// ErrActionNotActive is returned when an operation requires an action
// that is still awaiting resolution.
var ErrActionNotActive = errors.New("action is no longer active")

// Store is the manager's view of the engine's state store. Mutate runs
// fn under the engine's state lock; Snapshot returns a copy.
type Store interface {
	Mutate(fn func(*datatypes.ConversationState))
	Snapshot() *datatypes.ConversationState
}

// Dispatcher executes one tool invocation end to end (parameter merge,
// concurrency cap, retry). It blocks until the invocation resolves.
type Dispatcher interface {
	Dispatch(ctx context.Context, action *datatypes.ExecutableAction, profile *datatypes.CustomerProfile) (*toolcat.InvocationResult, error)
}

// Manager owns the lifecycle of surfaced actions for one conversation.
//
// Description:
//
//	Candidates arriving from a pipeline run pass through Reconcile,
//	which invalidates stale actions, surfaces the new ones, and starts
//	auto-execution countdowns where policy allows. Operator decisions
//	arrive through Confirm and Dismiss. Every resolution appends to the
//	conversation's history and emits an action-resolved event.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	store      Store
	clock      timing.Clock
	emitter    *events.Emitter
	dispatcher Dispatcher
	catalog    *toolcat.Catalog
	policy     Policy

	countdowns map[string]*countdown

	// launched records how each executing action was started, so the
	// history entry written at completion carries the right interaction.
	launched map[string]datatypes.UserInteraction
}

type countdown struct {
	timer     timing.Timer
	remaining int
}

// NewManager creates a lifecycle manager.
//
// Inputs:
//
//	store - The engine's state store.
//	clock - Time source. Pass timing.RealClock{} in production.
//	emitter - The conversation's event emitter.
//	dispatcher - Tool execution backend.
//	catalog - Tool catalog; supplies per-tool auto-execution thresholds.
//	policy - Auto-execution policy.
func NewManager(store Store, clock timing.Clock, emitter *events.Emitter, dispatcher Dispatcher, catalog *toolcat.Catalog, policy Policy) *Manager {
	if clock == nil {
		clock = timing.RealClock{}
	}
	return &Manager{
		store:      store,
		clock:      clock,
		emitter:    emitter,
		dispatcher: dispatcher,
		catalog:    catalog,
		policy:     policy,
		countdowns: make(map[string]*countdown),
		launched:   make(map[string]datatypes.UserInteraction),
	}
}

// Reconcile folds a pipeline run's candidate actions into live state.
//
// Description:
//
//	First, still-suggested actions are checked for staleness: the
//	conversation moved to a different stage since the run started, or
//	the customer profile now contradicts one of the action's proposed
//	parameters. Stale actions are invalidated with a reason and
//	recorded in history; their countdowns are cancelled. Second, new
//	candidates are surfaced, skipping any that duplicate a still-active
//	action on the same tool and intent. Finally, auto-execution
//	countdowns start for candidates the policy admits unattended.
//
// Inputs:
//
//	prevStageID - CurrentStageID observed before the pipeline run.
//	candidates - Post-filtered candidates from the action stage.
func (m *Manager) Reconcile(prevStageID string, candidates []*datatypes.ExecutableAction) {
	nowMs := m.clock.Now().UnixMilli()

	var resolved []events.ActionResolvedData
	var autoStart []string

	m.store.Mutate(func(state *datatypes.ConversationState) {
		stageChanged := prevStageID != "" && state.CurrentStageID != prevStageID

		kept := state.Actions[:0]
		for _, a := range state.Actions {
			if a.Status != datatypes.StatusSuggested {
				kept = append(kept, a)
				continue
			}

			reason := ""
			switch {
			case stageChanged:
				reason = fmt.Sprintf("conversation moved from stage %q to %q", prevStageID, state.CurrentStageID)
			case conflictsWithProfile(a.Parameters, &state.Profile):
				reason = "superseded by newer customer information"
			}
			if reason == "" {
				kept = append(kept, a)
				continue
			}

			m.cancelCountdown(a.ID)
			if err := Transition(a, datatypes.StatusInvalidated, reason, nowMs); err != nil {
				kept = append(kept, a)
				continue
			}
			state.History = append(state.History, historyEntry(a, datatypes.InteractionInvalidated, nowMs))
			resolved = append(resolved, events.ActionResolvedData{
				ActionID:    a.ID,
				FinalStatus: a.Status,
				Interaction: datatypes.InteractionInvalidated,
				Reason:      reason,
			})
		}
		state.Actions = kept

		for _, c := range candidates {
			if hasActiveDuplicate(state.Actions, c) {
				continue
			}
			state.Actions = append(state.Actions, c)
			if m.policy.ShouldAutoExecute(c, m.toolThreshold(c.ToolName)) {
				autoStart = append(autoStart, c.ID)
			}
		}
	})

	for _, data := range resolved {
		m.emitResolved(data)
	}
	for _, id := range autoStart {
		m.startCountdown(id)
	}
}

// Confirm approves a suggested action and begins execution.
//
// Outputs:
//
//	error - ErrActionNotFound, or ErrInvalidTransition if the action is
//	  no longer suggested (e.g. it was invalidated mid-click).
func (m *Manager) Confirm(actionID string) error {
	m.cancelCountdown(actionID)
	return m.launch(actionID, datatypes.InteractionConfirmed)
}

// Dismiss declines an action.
//
// Description:
//
//	A suggested action (including one mid-countdown) moves to dismissed
//	and its countdown stops. An executing action is also dismissable:
//	the in-flight tool call keeps running but its result is discarded.
//
// Inputs:
//
//	actionID - The action to dismiss.
//	reason - Why. The countdown-cancel path passes "user_cancel".
func (m *Manager) Dismiss(actionID, reason string) error {
	m.cancelCountdown(actionID)
	nowMs := m.clock.Now().UnixMilli()

	var data events.ActionResolvedData
	var opErr error

	m.store.Mutate(func(state *datatypes.ConversationState) {
		a, ok := state.FindAction(actionID)
		if !ok {
			opErr = fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
			return
		}
		if err := Transition(a, datatypes.StatusDismissed, reason, nowMs); err != nil {
			opErr = err
			return
		}
		state.History = append(state.History, historyEntry(a, datatypes.InteractionDismissed, nowMs))
		state.Actions = removeAction(state.Actions, actionID)
		data = events.ActionResolvedData{
			ActionID:    actionID,
			FinalStatus: datatypes.StatusDismissed,
			Interaction: datatypes.InteractionDismissed,
			Reason:      reason,
		}
	})
	if opErr != nil {
		return opErr
	}

	m.mu.Lock()
	delete(m.launched, actionID)
	m.mu.Unlock()

	m.emitResolved(data)
	return nil
}

// CancelCountdown stops a pending auto-execution. The action is
// dismissed with reason "user_cancel" and recorded in history.
func (m *Manager) CancelCountdown(actionID string) error {
	return m.Dismiss(actionID, "user_cancel")
}

// CancelAll stops every pending countdown without resolving the
// actions. Used on conversation shutdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cd := range m.countdowns {
		if cd.timer != nil {
			cd.timer.Stop()
		}
		delete(m.countdowns, id)
	}
}

// launch moves an action into executing and hands it to the dispatcher
// on its own goroutine.
func (m *Manager) launch(actionID string, interaction datatypes.UserInteraction) error {
	nowMs := m.clock.Now().UnixMilli()

	var launched *datatypes.ExecutableAction
	var profile *datatypes.CustomerProfile
	var opErr error

	m.store.Mutate(func(state *datatypes.ConversationState) {
		a, ok := state.FindAction(actionID)
		if !ok {
			opErr = fmt.Errorf("%w: %s", ErrActionNotFound, actionID)
			return
		}

		if interaction == datatypes.InteractionConfirmed {
			if err := Transition(a, datatypes.StatusConfirmed, "", nowMs); err != nil {
				opErr = err
				return
			}
		}
		if err := Transition(a, datatypes.StatusExecuting, string(interaction), nowMs); err != nil {
			opErr = err
			return
		}

		clone := *a
		launched = &clone
		profile = state.Profile.Clone()
	})
	if opErr != nil {
		return opErr
	}

	m.mu.Lock()
	m.launched[actionID] = interaction
	m.mu.Unlock()

	go m.execute(launched, profile)
	return nil
}

// execute runs the dispatcher and applies the result. Runs detached
// from any request context: an operator navigating away must not abort
// an in-flight tool call.
func (m *Manager) execute(action *datatypes.ExecutableAction, profile *datatypes.CustomerProfile) {
	result, err := m.dispatcher.Dispatch(context.Background(), action, profile)
	m.finish(action.ID, result, err)
}

// finish resolves an executing action with its dispatch outcome.
func (m *Manager) finish(actionID string, result *toolcat.InvocationResult, dispatchErr error) {
	nowMs := m.clock.Now().UnixMilli()

	m.mu.Lock()
	interaction, ok := m.launched[actionID]
	delete(m.launched, actionID)
	m.mu.Unlock()
	if !ok {
		// Dismissed while in flight; the outcome is discarded.
		slog.Debug("Discarding result of dismissed action", "action_id", actionID)
		return
	}

	var data events.ActionResolvedData
	applied := false

	m.store.Mutate(func(state *datatypes.ConversationState) {
		a, found := state.FindAction(actionID)
		if !found || a.Status != datatypes.StatusExecuting {
			return
		}

		if dispatchErr == nil && result != nil && result.Success {
			if err := Transition(a, datatypes.StatusCompleted, "", nowMs); err != nil {
				return
			}
			a.Result = result.Summary
		} else {
			msg := dispatchErrorMessage(result, dispatchErr)
			if err := Transition(a, datatypes.StatusFailed, msg, nowMs); err != nil {
				return
			}
			a.Error = msg
		}

		state.History = append(state.History, historyEntry(a, interaction, nowMs))
		// Terminal actions live on in history only; messages are
		// windowed, so the live list must not grow without bound.
		state.Actions = removeAction(state.Actions, actionID)
		data = events.ActionResolvedData{
			ActionID:    actionID,
			FinalStatus: a.Status,
			Interaction: interaction,
			Reason:      a.StatusReason,
		}
		applied = true
	})

	if applied {
		m.emitResolved(data)
	}
}

// =============================================================================
// Auto-execution countdown
// =============================================================================

// startCountdown begins the cancellable window before auto-execution,
// emitting a countdown-tick event each second.
func (m *Manager) startCountdown(actionID string) {
	total := int(m.policy.Countdown / time.Second)
	if total <= 0 {
		m.autoExecute(actionID)
		return
	}

	m.mu.Lock()
	m.countdowns[actionID] = &countdown{remaining: total}
	m.mu.Unlock()

	m.emitTick(actionID, total)
	m.armTick(actionID)
}

func (m *Manager) armTick(actionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cd, ok := m.countdowns[actionID]
	if !ok {
		return
	}
	cd.timer = m.clock.AfterFunc(time.Second, func() { m.tick(actionID) })
}

func (m *Manager) tick(actionID string) {
	m.mu.Lock()
	cd, ok := m.countdowns[actionID]
	if !ok {
		// Cancelled between fire and lock acquisition.
		m.mu.Unlock()
		return
	}
	cd.remaining--
	remaining := cd.remaining
	if remaining <= 0 {
		delete(m.countdowns, actionID)
	}
	m.mu.Unlock()

	if remaining <= 0 {
		m.autoExecute(actionID)
		return
	}
	m.emitTick(actionID, remaining)
	m.armTick(actionID)
}

// cancelCountdown stops the countdown timer if one is pending. Safe to
// call for actions that never had one.
func (m *Manager) cancelCountdown(actionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cd, ok := m.countdowns[actionID]
	if !ok {
		return
	}
	if cd.timer != nil {
		cd.timer.Stop()
	}
	delete(m.countdowns, actionID)
}

// autoExecute fires when a countdown elapses uncancelled.
func (m *Manager) autoExecute(actionID string) {
	if err := m.launch(actionID, datatypes.InteractionAutoExecuted); err != nil {
		// The action was resolved during the countdown's final tick.
		slog.Debug("Auto-execution skipped", "action_id", actionID, "error", err.Error())
	}
}

func (m *Manager) emitTick(actionID string, secondsRemaining int) {
	m.emitter.Emit(events.TypeCountdownTick, events.CountdownTickData{
		ActionID:         actionID,
		SecondsRemaining: secondsRemaining,
	})
}

func (m *Manager) emitResolved(data events.ActionResolvedData) {
	m.emitter.Emit(events.TypeActionResolved, data)
}

// =============================================================================
// Helpers
// =============================================================================

// toolThreshold returns the catalog's per-tool auto-execution
// threshold, or 0 when the tool has none.
func (m *Manager) toolThreshold(name string) int {
	if m.catalog == nil {
		return 0
	}
	if spec, ok := m.catalog.Get(name); ok {
		return spec.AutoExecuteThreshold
	}
	return 0
}

// conflictsWithProfile reports whether the profile now contradicts one
// of the action's proposed parameters. The profile is authoritative, so
// a contradiction means the action was generated from outdated facts.
func conflictsWithProfile(params map[string]any, profile *datatypes.CustomerProfile) bool {
	authoritative := profile.ToParams()
	for key, proposed := range params {
		current, ok := authoritative[key]
		if !ok {
			continue
		}
		if fmt.Sprint(proposed) != fmt.Sprint(current) {
			return true
		}
	}
	return false
}

// hasActiveDuplicate reports whether an active action already targets
// the candidate's tool for the same intent.
func hasActiveDuplicate(actions []*datatypes.ExecutableAction, c *datatypes.ExecutableAction) bool {
	for _, a := range actions {
		if a.Status.IsActive() && a.ToolName == c.ToolName && a.Intent == c.Intent {
			return true
		}
	}
	return false
}

func removeAction(actions []*datatypes.ExecutableAction, id string) []*datatypes.ExecutableAction {
	out := actions[:0]
	for _, a := range actions {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

func historyEntry(a *datatypes.ExecutableAction, interaction datatypes.UserInteraction, nowMs int64) datatypes.ActionHistoryEntry {
	return datatypes.ActionHistoryEntry{
		ActionID:    a.ID,
		Label:       a.Label,
		ToolName:    a.ToolName,
		FinalStatus: a.Status,
		Interaction: interaction,
		Reason:      a.StatusReason,
		Result:      a.Result,
		Error:       a.Error,
		SuggestedAt: a.CreatedAt,
		ResolvedAt:  nowMs,
	}
}

func dispatchErrorMessage(result *toolcat.InvocationResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if result != nil && result.Error != "" {
		return result.Error
	}
	return "tool invocation failed"
}
