// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scheduler implements the adaptive debouncer that decides when
// accumulated conversation fragments are analyzed.
//
// Every new fragment restarts the wait timer with a delay chosen by the
// fast pattern classifier; a secondary maximum-wait timer, armed on the
// first unprocessed fragment, fires unconditionally so a trickle of
// incomplete-looking fragments can never defer analysis forever.
//
// Thread Safety:
//
//	Scheduler is safe for concurrent use. At most one pipeline run is
//	in flight per scheduler at any instant.
package scheduler

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/timing"
)

// Trigger names why a pipeline run fired.
type Trigger string

const (
	// TriggerDebounce means the adaptive wait elapsed quietly.
	TriggerDebounce Trigger = "debounce"

	// TriggerMaxWait means the safety-net ceiling forced the run.
	TriggerMaxWait Trigger = "max_wait"
)

// RunFunc executes one analysis pipeline run. It is called on its own
// goroutine and must not be nil.
type RunFunc func(trigger Trigger)

// Config holds the debounce delay table. All delays are checked for
// sanity at use time; a non-positive value is a SchedulingFault that
// logs and falls back to the normal delay.
type Config struct {
	// UrgentDelay applies when the fragment carries explicit
	// now/immediately language.
	UrgentDelay time.Duration

	// AffirmativeDelay applies to short agreement replies.
	AffirmativeDelay time.Duration

	// FastTrackDelay applies when the fragment has critical info and
	// is not incomplete.
	FastTrackDelay time.Duration

	// ExtendedDelay applies to incomplete fragments.
	ExtendedDelay time.Duration

	// NormalDelay applies otherwise.
	NormalDelay time.Duration

	// MaxWait is the unconditional ceiling from first unprocessed
	// fragment to forced pipeline run.
	MaxWait time.Duration
}

// DefaultConfig returns the production delay table.
func DefaultConfig() Config {
	return Config{
		UrgentDelay:      500 * time.Millisecond,
		AffirmativeDelay: 1000 * time.Millisecond,
		FastTrackDelay:   1500 * time.Millisecond,
		ExtendedDelay:    4000 * time.Millisecond,
		NormalDelay:      2500 * time.Millisecond,
		MaxWait:          8000 * time.Millisecond,
	}
}

// Scheduler is the per-conversation adaptive debouncer.
//
// Thread Safety: all methods are safe for concurrent use.
type Scheduler struct {
	mu sync.Mutex

	cfg   Config
	clock timing.Clock
	run   RunFunc

	// fragments accumulates unprocessed utterance text; classification
	// always runs over the combined fragment so later arrivals can
	// complete an earlier partial expression.
	fragments []string

	debounce timing.Timer
	maxWait  timing.Timer

	running bool
	pending bool
	closed  bool

	pendingTrigger Trigger
}

// New creates a scheduler.
//
// Inputs:
//
//	cfg - Delay table. Zero-valued fields fall back per delayFor.
//	clock - Time source. Pass timing.RealClock{} in production.
//	run - Pipeline run callback. Must not be nil.
func New(cfg Config, clock timing.Clock, run RunFunc) *Scheduler {
	if clock == nil {
		clock = timing.RealClock{}
	}
	return &Scheduler{cfg: cfg, clock: clock, run: run}
}

// NoteUtterance records a new fragment and (re)schedules analysis.
//
// Description:
//
//	The fragment joins the unprocessed buffer, the combined buffer is
//	reclassified, and the debounce timer restarts with the resulting
//	delay — the wait is always relative to the latest fragment. The
//	max-wait timer is armed only if not already running, so it measures
//	from the first unprocessed fragment.
//
// Inputs:
//
//	text - The new utterance text.
//
// Outputs:
//
//	time.Duration - The delay chosen for this fragment (for observability).
//
// Thread Safety: This method is safe for concurrent use.
func (s *Scheduler) NoteUtterance(text string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}

	s.fragments = append(s.fragments, text)
	combined := strings.Join(s.fragments, " ")
	classification := Classify(combined)
	delay := s.delayFor(classification)

	slog.Debug("Fragment scheduled",
		"delay_ms", delay.Milliseconds(),
		"incomplete", classification.Incomplete,
		"critical_info", classification.HasCriticalInfo,
		"urgent", classification.Urgent,
		"affirmative", classification.ShortAffirmative,
	)

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = s.clock.AfterFunc(delay, func() { s.fire(TriggerDebounce) })

	if s.maxWait == nil {
		s.maxWait = s.clock.AfterFunc(s.maxWaitDelay(), func() { s.fire(TriggerMaxWait) })
	}

	return delay
}

// delayFor applies the spec precedence: urgency, short affirmative,
// fast track, extended, normal. Caller holds s.mu.
func (s *Scheduler) delayFor(c Classification) time.Duration {
	switch {
	case c.Urgent:
		return s.sane(s.cfg.UrgentDelay, "urgent")
	case c.ShortAffirmative:
		return s.sane(s.cfg.AffirmativeDelay, "affirmative")
	case c.HasCriticalInfo && !c.Incomplete:
		return s.sane(s.cfg.FastTrackDelay, "fast_track")
	case c.Incomplete:
		return s.sane(s.cfg.ExtendedDelay, "extended")
	default:
		return s.sane(s.cfg.NormalDelay, "normal")
	}
}

// sane guards against timer misconfiguration: a non-positive delay is
// logged as a SchedulingFault and replaced by the normal delay (or the
// shipped default if that is broken too).
func (s *Scheduler) sane(d time.Duration, name string) time.Duration {
	if d > 0 {
		return d
	}
	slog.Error("Scheduling fault: non-positive delay configured, falling back",
		"delay", name,
	)
	if s.cfg.NormalDelay > 0 {
		return s.cfg.NormalDelay
	}
	return DefaultConfig().NormalDelay
}

func (s *Scheduler) maxWaitDelay() time.Duration {
	if s.cfg.MaxWait > 0 {
		return s.cfg.MaxWait
	}
	slog.Error("Scheduling fault: non-positive max wait configured, falling back")
	return DefaultConfig().MaxWait
}

// fire is the timer callback. It clears both timers and either starts
// a run or, if one is already in flight, records the request as pending
// so the scheduler re-arms immediately after the run completes.
func (s *Scheduler) fire(trigger Trigger) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}

	s.stopTimersLocked()
	s.fragments = nil

	if s.running {
		// Reentrancy guard: never two concurrent runs. The in-flight
		// run is allowed to finish; this firing is deferred.
		s.pending = true
		s.pendingTrigger = trigger
		s.mu.Unlock()
		return
	}

	s.running = true
	s.mu.Unlock()

	go s.execute(trigger)
}

func (s *Scheduler) execute(trigger Trigger) {
	s.run(trigger)

	s.mu.Lock()
	s.running = false
	if s.pending && !s.closed {
		s.pending = false
		trigger := s.pendingTrigger
		s.running = true
		s.mu.Unlock()
		go s.execute(trigger)
		return
	}
	s.mu.Unlock()
}

// Flush forces an immediate run of anything unprocessed. Used on
// conversation close so trailing fragments are not lost.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	hasWork := s.debounce != nil || s.maxWait != nil || len(s.fragments) > 0
	s.mu.Unlock()
	if hasWork {
		s.fire(TriggerMaxWait)
	}
}

// Close stops all timers. Pending work is dropped; an in-flight run is
// allowed to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.pending = false
	s.stopTimersLocked()
}

// stopTimersLocked stops and clears both timers. Caller holds s.mu.
func (s *Scheduler) stopTimersLocked() {
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.maxWait != nil {
		s.maxWait.Stop()
		s.maxWait = nil
	}
}

// Running reports whether a pipeline run is currently in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
