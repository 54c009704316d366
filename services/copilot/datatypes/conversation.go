// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the copilot engine.
//
// One ConversationState exists per active conversation. It is owned by a
// single OrchestrationEngine instance and mutated only through StatePatch
// reducers applied sequentially by that engine. No type in this package
// performs its own locking; callers serialize access.
package datatypes

import (
	"strings"
	"time"
)

// MaxRetainedMessages bounds the transcript window kept in state.
// Older messages are dropped; the analysis pipeline only ever looks
// at the most recent messages anyway.
const MaxRetainedMessages = 10

// Speaker identifies who produced a transcript message.
type Speaker string

const (
	// SpeakerAgent is the human operator being assisted.
	SpeakerAgent Speaker = "agent"

	// SpeakerCustomer is the other party on the call.
	SpeakerCustomer Speaker = "customer"
)

// TranscriptMessage is one speaker-attributed, timestamped unit of
// transcribed text. Immutable once created.
type TranscriptMessage struct {
	// Speaker is who said it.
	Speaker Speaker `json:"speaker"`

	// Text is the transcribed utterance.
	Text string `json:"text"`

	// Timestamp is when the utterance was captured (Unix milliseconds UTC).
	Timestamp int64 `json:"timestamp"`
}

// StageStatus describes a conversation stage's position in the narrative.
type StageStatus string

const (
	// StageCompleted marks a stage that is finished. Completed stages
	// are frozen and never revert.
	StageCompleted StageStatus = "completed"

	// StageCurrent marks the stage the conversation is in right now.
	StageCurrent StageStatus = "current"

	// StageFuture marks a stage the conversation has not reached.
	StageFuture StageStatus = "future"
)

// Stage is one step in the conversation's narrative arc. Stages are
// appended, never reordered.
type Stage struct {
	// ID uniquely identifies the stage within a conversation.
	ID string `json:"id"`

	// Label is the human-readable stage name (e.g. "Dates & party size").
	Label string `json:"label"`

	// Status is completed, current, or future.
	Status StageStatus `json:"status"`
}

// CustomerProfile is the sparse record of facts extracted from the
// conversation so far. It is the authoritative source of truth for
// dispatch parameters: values here override whatever the inference
// backend proposed on an action.
type CustomerProfile struct {
	// CheckIn is the requested start date, as spoken (e.g. "May 28").
	CheckIn string `json:"check_in,omitempty"`

	// CheckOut is the requested end date.
	CheckOut string `json:"check_out,omitempty"`

	// PartySize is the number of people, 0 if unknown.
	PartySize int `json:"party_size,omitempty"`

	// Budget is the stated budget, as spoken (e.g. "$2,500").
	Budget string `json:"budget,omitempty"`

	// Name is the customer's name if given.
	Name string `json:"name,omitempty"`

	// Email is the customer's email if given.
	Email string `json:"email,omitempty"`

	// Phone is the customer's phone number if given.
	Phone string `json:"phone,omitempty"`

	// Preferences accumulates stated preferences (append + dedupe).
	Preferences []string `json:"preferences,omitempty"`

	// SpecialRequests accumulates special requests (append + dedupe).
	SpecialRequests []string `json:"special_requests,omitempty"`
}

// Merge folds a profile delta into the receiver.
//
// Description:
//
//	Scalar fields overwrite when the delta carries a non-zero value.
//	Array fields append and deduplicate (case-insensitive), preserving
//	first-seen order so earlier statements keep their position.
//
// Inputs:
//
//	delta - The extracted profile delta. Nil is a no-op.
func (p *CustomerProfile) Merge(delta *CustomerProfile) {
	if delta == nil {
		return
	}
	if delta.CheckIn != "" {
		p.CheckIn = delta.CheckIn
	}
	if delta.CheckOut != "" {
		p.CheckOut = delta.CheckOut
	}
	if delta.PartySize > 0 {
		p.PartySize = delta.PartySize
	}
	if delta.Budget != "" {
		p.Budget = delta.Budget
	}
	if delta.Name != "" {
		p.Name = delta.Name
	}
	if delta.Email != "" {
		p.Email = delta.Email
	}
	if delta.Phone != "" {
		p.Phone = delta.Phone
	}
	p.Preferences = appendDedupe(p.Preferences, delta.Preferences)
	p.SpecialRequests = appendDedupe(p.SpecialRequests, delta.SpecialRequests)
}

// ToParams flattens the profile into dispatch parameters.
//
// Description:
//
//	Only populated fields appear in the result. The dispatcher treats
//	these as authoritative overrides for action parameters.
//
// Outputs:
//
//	map[string]any - Parameter name to value for every populated field.
func (p *CustomerProfile) ToParams() map[string]any {
	params := make(map[string]any)
	if p.CheckIn != "" {
		params["check_in"] = p.CheckIn
	}
	if p.CheckOut != "" {
		params["check_out"] = p.CheckOut
	}
	if p.PartySize > 0 {
		params["party_size"] = p.PartySize
	}
	if p.Budget != "" {
		params["budget"] = p.Budget
	}
	if p.Name != "" {
		params["name"] = p.Name
	}
	if p.Email != "" {
		params["email"] = p.Email
	}
	if p.Phone != "" {
		params["phone"] = p.Phone
	}
	return params
}

// Clone returns a deep copy of the profile.
func (p *CustomerProfile) Clone() *CustomerProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Preferences = append([]string(nil), p.Preferences...)
	cp.SpecialRequests = append([]string(nil), p.SpecialRequests...)
	return &cp
}

func appendDedupe(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	for _, v := range incoming {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		existing = append(existing, strings.TrimSpace(v))
	}
	return existing
}

// QuickScript is a short suggested line the operator can read verbatim.
type QuickScript struct {
	// ID uniquely identifies the script.
	ID string `json:"id"`

	// Label is a short name shown on the script chip.
	Label string `json:"label"`

	// Text is what the operator would say.
	Text string `json:"text"`
}

// ConversationInsight is the pipeline's read on how the conversation
// is going.
type ConversationInsight struct {
	// HealthScore is 0-100 (higher is better). Defaults to 75 until
	// the conversation has enough material to score.
	HealthScore int `json:"health_score"`

	// Concerns lists things going badly.
	Concerns []string `json:"concerns,omitempty"`

	// Strengths lists things going well.
	Strengths []string `json:"strengths,omitempty"`

	// MissingInfo lists facts still needed to move the deal forward.
	MissingInfo []string `json:"missing_info,omitempty"`
}

// TaskStatus describes a background tool invocation's progress.
type TaskStatus string

const (
	// TaskPending means the invocation is queued behind a concurrency cap.
	TaskPending TaskStatus = "pending"

	// TaskRunning means the tool call is in flight.
	TaskRunning TaskStatus = "running"

	// TaskCompleted means the tool call succeeded.
	TaskCompleted TaskStatus = "completed"

	// TaskFailed means the tool call failed.
	TaskFailed TaskStatus = "failed"
)

// BackgroundTask mirrors one Tool Service invocation in state so the
// presentation layer can show in-flight work.
type BackgroundTask struct {
	// ID uniquely identifies the task.
	ID string `json:"id"`

	// ToolName is the tool being invoked.
	ToolName string `json:"tool_name"`

	// Parameters are the merged parameters the tool was called with.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Status is pending, running, completed, or failed.
	Status TaskStatus `json:"status"`

	// Progress is an optional 0-100 completion hint.
	Progress int `json:"progress,omitempty"`

	// StartedAt is when the task was created (Unix milliseconds UTC).
	StartedAt int64 `json:"started_at"`
}

// ConversationState is the full engine-owned state for one conversation.
//
// Thread Safety: not self-synchronized. The owning engine applies all
// mutations sequentially; consumers receive snapshots.
type ConversationState struct {
	// ConversationID identifies the conversation.
	ConversationID string `json:"conversation_id"`

	// Messages is the bounded transcript window (last MaxRetainedMessages).
	Messages []TranscriptMessage `json:"messages"`

	// Stages is the ordered narrative of this conversation.
	Stages []Stage `json:"stages,omitempty"`

	// CurrentStageID points at the stage with StageCurrent status.
	CurrentStageID string `json:"current_stage_id,omitempty"`

	// Profile is the accumulated customer profile.
	Profile CustomerProfile `json:"profile"`

	// DetectedIntents is the set of intents seen so far.
	DetectedIntents []string `json:"detected_intents,omitempty"`

	// Actions holds the currently surfaced executable actions.
	Actions []*ExecutableAction `json:"actions,omitempty"`

	// Scripts holds the currently suggested quick scripts.
	Scripts []QuickScript `json:"scripts,omitempty"`

	// Insight is the latest conversation insight.
	Insight ConversationInsight `json:"insight"`

	// Tasks lists in-flight and recently finished tool invocations.
	Tasks []*BackgroundTask `json:"tasks,omitempty"`

	// History is the append-only record of resolved actions.
	// Entries are never deleted or mutated.
	History []ActionHistoryEntry `json:"history,omitempty"`

	// CreatedAt is when the conversation started (Unix milliseconds UTC).
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is when state last changed (Unix milliseconds UTC).
	UpdatedAt int64 `json:"updated_at"`
}

// NewConversationState creates state for a conversation's first utterance.
func NewConversationState(conversationID string, now time.Time) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		Insight:        ConversationInsight{HealthScore: DefaultHealthScore},
		CreatedAt:      now.UnixMilli(),
		UpdatedAt:      now.UnixMilli(),
	}
}

// DefaultHealthScore is used until at least MinMessagesForHealth
// messages have arrived.
const DefaultHealthScore = 75

// MinMessagesForHealth is the message count below which health scoring
// is skipped.
const MinMessagesForHealth = 3

// Clone returns a deep copy of the state.
//
// Description:
//
//	Snapshots handed to pipeline stages and consumers must not alias
//	engine-owned memory. Actions and tasks are copied by value so a
//	consumer holding a snapshot never observes an in-place status change.
func (s *ConversationState) Clone() *ConversationState {
	cp := *s
	cp.Messages = append([]TranscriptMessage(nil), s.Messages...)
	cp.Stages = append([]Stage(nil), s.Stages...)
	cp.DetectedIntents = append([]string(nil), s.DetectedIntents...)
	cp.Scripts = append([]QuickScript(nil), s.Scripts...)
	cp.History = append([]ActionHistoryEntry(nil), s.History...)
	cp.Profile = *s.Profile.Clone()
	cp.Insight.Concerns = append([]string(nil), s.Insight.Concerns...)
	cp.Insight.Strengths = append([]string(nil), s.Insight.Strengths...)
	cp.Insight.MissingInfo = append([]string(nil), s.Insight.MissingInfo...)

	if s.Actions != nil {
		cp.Actions = make([]*ExecutableAction, len(s.Actions))
		for i, a := range s.Actions {
			ac := *a
			cp.Actions[i] = &ac
		}
	}
	if s.Tasks != nil {
		cp.Tasks = make([]*BackgroundTask, len(s.Tasks))
		for i, t := range s.Tasks {
			tc := *t
			cp.Tasks[i] = &tc
		}
	}
	return &cp
}

// AppendMessage adds a transcript message, trimming the window to
// MaxRetainedMessages.
func (s *ConversationState) AppendMessage(msg TranscriptMessage) {
	s.Messages = append(s.Messages, msg)
	if len(s.Messages) > MaxRetainedMessages {
		s.Messages = s.Messages[len(s.Messages)-MaxRetainedMessages:]
	}
}

// RecentMessages returns up to n of the newest messages, oldest first.
func (s *ConversationState) RecentMessages(n int) []TranscriptMessage {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	if len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// FindAction returns the surfaced action with the given ID.
func (s *ConversationState) FindAction(id string) (*ExecutableAction, bool) {
	for _, a := range s.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return nil, false
}

// HasIntent reports whether an intent has been detected.
func (s *ConversationState) HasIntent(intent string) bool {
	for _, v := range s.DetectedIntents {
		if v == intent {
			return true
		}
	}
	return false
}

// AddIntents merges intents into the detected set, preserving order.
func (s *ConversationState) AddIntents(intents []string) {
	for _, intent := range intents {
		intent = strings.TrimSpace(intent)
		if intent == "" || s.HasIntent(intent) {
			continue
		}
		s.DetectedIntents = append(s.DetectedIntents, intent)
	}
}
