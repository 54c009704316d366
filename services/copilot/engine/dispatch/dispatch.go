// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch executes confirmed and auto-executed actions against
// the tool backend.
//
// The dispatcher enforces per-tool concurrency caps with weighted
// semaphores, merges parameters with the customer profile as the
// authoritative source, mirrors every invocation as a BackgroundTask in
// conversation state, and retries exactly once for low-risk idempotent
// tools.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/events"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/toolcat"
)

var tracer = otel.Tracer("aleutian.copilot.dispatch")

// ErrUnknownTool is returned when an action names a tool that is not in
// the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// DefaultInvocationTimeout bounds one tool call attempt.
const DefaultInvocationTimeout = 30 * time.Second

// Store is the dispatcher's view of the engine's state store, used to
// mirror invocations as BackgroundTasks.
type Store interface {
	Mutate(fn func(*datatypes.ConversationState))
}

// Dispatcher executes tool invocations for one conversation.
//
// Thread Safety: Dispatcher is safe for concurrent use. Concurrency per
// tool is bounded by the catalog's MaxConcurrent; a dispatch over the
// cap queues until a slot frees.
type Dispatcher struct {
	client  toolcat.ToolClient
	catalog *toolcat.Catalog
	store   Store
	emitter *events.Emitter
	timeout time.Duration

	// sems holds one weighted semaphore per catalog tool, sized at
	// construction. The map is never written after NewDispatcher.
	sems map[string]*semaphore.Weighted
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithInvocationTimeout bounds each tool call attempt.
func WithInvocationTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		dp.timeout = d
	}
}

// NewDispatcher creates a dispatcher over the given tool backend.
//
// Inputs:
//
//	client - Tool Service client.
//	catalog - Tool catalog (concurrency caps, risk, idempotency).
//	store - State store for BackgroundTask mirroring. May be nil in tests.
//	emitter - Event emitter for dispatch lifecycle events.
//	opts - Configuration options.
func NewDispatcher(client toolcat.ToolClient, catalog *toolcat.Catalog, store Store, emitter *events.Emitter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:  client,
		catalog: catalog,
		store:   store,
		emitter: emitter,
		timeout: DefaultInvocationTimeout,
		sems:    make(map[string]*semaphore.Weighted),
	}
	for _, name := range catalog.Names() {
		spec, _ := catalog.Get(name)
		max := spec.MaxConcurrent
		if max < 1 {
			max = 1
		}
		d.sems[name] = semaphore.NewWeighted(int64(max))
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one action's tool invocation to completion.
//
// Description:
//
//	Parameters are merged with the customer profile authoritative: a
//	profile value replaces the action's proposed value for the same
//	key, and every replaced key is recorded on the dispatch event. The
//	call waits for a per-tool concurrency slot, mirrors itself as a
//	BackgroundTask, and invokes the tool. A failed first attempt is
//	retried once, only for low-risk idempotent tools; high-risk tools
//	are never retried.
//
// Inputs:
//
//	ctx - Context for the whole dispatch, including queueing time.
//	action - The executing action. Not mutated.
//	profile - Customer profile snapshot at launch time.
//
// Outputs:
//
//	*toolcat.InvocationResult - The final attempt's result, nil on
//	  transport error.
//	error - Transport-level failure, ErrUnknownTool, or ctx error while
//	  queued. A tool-level failure comes back as a result with
//	  Success=false and a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, action *datatypes.ExecutableAction, profile *datatypes.CustomerProfile) (*toolcat.InvocationResult, error) {
	spec, ok := d.catalog.Get(action.ToolName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, action.ToolName)
	}

	params, overridden := MergeParams(action.Parameters, profile)

	ctx, span := tracer.Start(ctx, "dispatch.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool", action.ToolName),
		attribute.String("action_id", action.ID),
		attribute.String("risk", string(action.RiskLevel)),
	)

	// The task is visible as pending while queued behind the tool's
	// concurrency cap, and flips to running once a slot is held.
	taskID := d.recordTaskQueued(action.ToolName, params)

	sem := d.sems[action.ToolName]
	if err := sem.Acquire(ctx, 1); err != nil {
		d.setTaskStatus(taskID, datatypes.TaskFailed)
		return nil, fmt.Errorf("dispatch queue wait aborted: %w", err)
	}
	defer sem.Release(1)

	d.setTaskStatus(taskID, datatypes.TaskRunning)
	start := time.Now()

	d.emitter.Emit(events.TypeDispatch, events.DispatchData{
		ActionID:         action.ID,
		ToolName:         action.ToolName,
		Phase:            "started",
		OverriddenParams: overridden,
	})

	result, err := d.invoke(ctx, action.ToolName, params)
	if d.shouldRetry(spec, result, err) {
		d.emitter.Emit(events.TypeDispatch, events.DispatchData{
			ActionID: action.ID,
			ToolName: action.ToolName,
			Phase:    "retrying",
			Error:    attemptError(result, err),
		})
		result, err = d.invoke(ctx, action.ToolName, params)
	}

	duration := time.Since(start)
	succeeded := err == nil && result != nil && result.Success

	if succeeded {
		d.recordTaskEnd(taskID, datatypes.TaskCompleted)
		d.emitter.Emit(events.TypeDispatch, events.DispatchData{
			ActionID: action.ID,
			ToolName: action.ToolName,
			Phase:    "completed",
			Duration: duration,
		})
		return result, nil
	}

	d.recordTaskEnd(taskID, datatypes.TaskFailed)
	msg := attemptError(result, err)
	span.SetStatus(codes.Error, msg)
	d.emitter.Emit(events.TypeDispatch, events.DispatchData{
		ActionID: action.ID,
		ToolName: action.ToolName,
		Phase:    "failed",
		Duration: duration,
		Error:    msg,
	})
	return result, err
}

// invoke runs one attempt with its own timeout.
func (d *Dispatcher) invoke(ctx context.Context, toolName string, params map[string]any) (*toolcat.InvocationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.client.Invoke(ctx, toolName, params)
}

// shouldRetry applies the retry policy: exactly one retry, only for
// low-risk idempotent tools. Anything with side effects that may have
// partially applied must surface the failure instead.
func (d *Dispatcher) shouldRetry(spec *toolcat.ToolSpec, result *toolcat.InvocationResult, err error) bool {
	failed := err != nil || result == nil || !result.Success
	return failed && spec.Idempotent && spec.RiskLevel == string(datatypes.RiskLow)
}

// recordTaskQueued mirrors the invocation as a pending BackgroundTask.
func (d *Dispatcher) recordTaskQueued(toolName string, params map[string]any) string {
	if d.store == nil {
		return ""
	}
	taskID := uuid.NewString()
	d.store.Mutate(func(state *datatypes.ConversationState) {
		state.Tasks = append(state.Tasks, &datatypes.BackgroundTask{
			ID:         taskID,
			ToolName:   toolName,
			Parameters: params,
			Status:     datatypes.TaskPending,
			StartedAt:  time.Now().UnixMilli(),
		})
	})
	return taskID
}

func (d *Dispatcher) setTaskStatus(taskID string, status datatypes.TaskStatus) {
	if d.store == nil || taskID == "" {
		return
	}
	d.store.Mutate(func(state *datatypes.ConversationState) {
		for _, task := range state.Tasks {
			if task.ID == taskID {
				task.Status = status
				return
			}
		}
	})
}

func (d *Dispatcher) recordTaskEnd(taskID string, status datatypes.TaskStatus) {
	if d.store == nil || taskID == "" {
		return
	}
	d.store.Mutate(func(state *datatypes.ConversationState) {
		for _, task := range state.Tasks {
			if task.ID == taskID {
				task.Status = status
				task.Progress = 100
				return
			}
		}
	})
}

// MergeParams merges an action's proposed parameters with the customer
// profile.
//
// Description:
//
//	The result starts from the action's parameters. Every populated
//	profile field then overwrites the proposal for the same key; keys
//	where an existing different value was replaced are returned so the
//	override is observable downstream. Neither input is mutated.
//
// Outputs:
//
//	map[string]any - The merged parameters.
//	[]string - Keys where the profile overrode a differing proposal.
func MergeParams(proposed map[string]any, profile *datatypes.CustomerProfile) (map[string]any, []string) {
	merged := make(map[string]any, len(proposed))
	for k, v := range proposed {
		merged[k] = v
	}

	var overridden []string
	if profile == nil {
		return merged, nil
	}
	for k, v := range profile.ToParams() {
		if existing, ok := merged[k]; ok && fmt.Sprint(existing) != fmt.Sprint(v) {
			overridden = append(overridden, k)
		}
		merged[k] = v
	}
	return merged, overridden
}

func attemptError(result *toolcat.InvocationResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if result != nil && result.Error != "" {
		return result.Error
	}
	return "tool invocation failed"
}
