// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inference wraps the external reasoning backend behind a
// single Client interface so the engine can be tested with scripted
// fakes and deployed against any OpenAI-compatible endpoint.
package inference

import "context"

// GenerationParams tunes one generation request.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client defines the standard interface for the inference backend.
//
// Description:
//
//	The engine never assumes the returned text is well-formed JSON or
//	matches any shape; pipeline stages decode defensively and fall back
//	to empty patches on any mismatch.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Client interface {
	// Generate produces a completion for the prompt.
	//
	// Inputs:
	//   ctx - Context carrying the per-stage timeout.
	//   prompt - The full stage prompt.
	//   params - Generation tuning.
	//
	// Outputs:
	//   string - The raw model output.
	//   error - Non-nil on transport or backend failure.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
