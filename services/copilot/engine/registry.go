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
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/timing"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/observability"
)

// ErrConversationNotFound is returned for operations on a conversation
// the registry does not hold.
var ErrConversationNotFound = errors.New("conversation not found")

// Factory creates an engine for a new conversation ID.
type Factory func(conversationID string) *Engine

// Registry maps conversation IDs to live engines and retires idle ones.
//
// Thread Safety: Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine

	factory     Factory
	clock       timing.Clock
	idleTimeout time.Duration

	sweep  timing.Timer
	closed bool
}

// sweepInterval is how often the idle sweep runs.
const sweepInterval = time.Minute

// NewRegistry creates a registry.
//
// Inputs:
//
//	factory - Engine constructor for unseen conversation IDs.
//	clock - Time source. Pass timing.RealClock{} in production.
//	idleTimeout - Retirement threshold; non-positive disables the sweep.
func NewRegistry(factory Factory, clock timing.Clock, idleTimeout time.Duration) *Registry {
	if clock == nil {
		clock = timing.RealClock{}
	}
	r := &Registry{
		engines:     make(map[string]*Engine),
		factory:     factory,
		clock:       clock,
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		r.sweep = clock.AfterFunc(sweepInterval, r.sweepIdle)
	}
	return r
}

// GetOrCreate returns the engine for a conversation, creating it on
// first sight.
func (r *Registry) GetOrCreate(conversationID string) *Engine {
	r.mu.RLock()
	e, ok := r.engines[conversationID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[conversationID]; ok {
		return e
	}
	e = r.factory(conversationID)
	r.engines[conversationID] = e
	observability.DefaultMetrics.SetActiveConversations(len(r.engines))
	slog.Info("Conversation started", "conversation_id", conversationID)
	return e
}

// Get returns the engine for a conversation if it exists.
func (r *Registry) Get(conversationID string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[conversationID]
	return e, ok
}

// Remove closes and drops a conversation's engine. The engine's
// trailing fragments are flushed first so the final pipeline run is
// not lost.
func (r *Registry) Remove(conversationID string) error {
	r.mu.Lock()
	e, ok := r.engines[conversationID]
	if ok {
		delete(r.engines, conversationID)
		observability.DefaultMetrics.SetActiveConversations(len(r.engines))
	}
	r.mu.Unlock()

	if !ok {
		return ErrConversationNotFound
	}
	e.Flush()
	e.Close()
	slog.Info("Conversation closed", "conversation_id", conversationID)
	return nil
}

// IDs returns the IDs of all live conversations.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// Close shuts down the registry and every engine it holds.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	if r.sweep != nil {
		r.sweep.Stop()
	}
	engines := make([]*Engine, 0, len(r.engines))
	for id, e := range r.engines {
		engines = append(engines, e)
		delete(r.engines, id)
	}
	r.mu.Unlock()

	for _, e := range engines {
		e.Close()
	}
}

// sweepIdle retires conversations whose state has not changed within
// the idle timeout.
func (r *Registry) sweepIdle() {
	cutoff := r.clock.Now().Add(-r.idleTimeout).UnixMilli()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	var idle []string
	for id, e := range r.engines {
		if e.LastActivityMs() < cutoff {
			idle = append(idle, id)
		}
	}
	r.sweep = r.clock.AfterFunc(sweepInterval, r.sweepIdle)
	r.mu.Unlock()

	for _, id := range idle {
		slog.Info("Retiring idle conversation", "conversation_id", id)
		if err := r.Remove(id); err != nil && !errors.Is(err, ErrConversationNotFound) {
			slog.Warn("Idle retirement failed", "conversation_id", id, "error", err.Error())
		}
	}
}
