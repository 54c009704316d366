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
	"time"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/actions"
	"github.com/AleutianAI/AleutianCopilot/services/copilot/engine/scheduler"
)

// Config collects the tunables of one conversation engine.
type Config struct {
	// Scheduler is the debounce delay table.
	Scheduler scheduler.Config

	// Policy is the auto-execution policy.
	Policy actions.Policy

	// StageTimeout bounds each pipeline stage's inference call.
	StageTimeout time.Duration

	// InvocationTimeout bounds each tool call attempt.
	InvocationTimeout time.Duration

	// IdleTimeout is how long a conversation may sit without an
	// utterance before the registry retires it.
	IdleTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Scheduler:         scheduler.DefaultConfig(),
		Policy:            actions.DefaultPolicy(),
		StageTimeout:      10 * time.Second,
		InvocationTimeout: 30 * time.Second,
		IdleTimeout:       30 * time.Minute,
	}
}
