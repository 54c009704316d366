// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Outcome tags a decode attempt. Every stage branches on this tag;
// nothing downstream ever assumes the inference output was well-formed.
type Outcome string

const (
	// DecodeOK means the payload parsed and validated.
	DecodeOK Outcome = "ok"

	// DecodeUnparseable means the payload could not be used. The stage
	// degrades to an empty patch.
	DecodeUnparseable Outcome = "unparseable"
)

// Decoded is the tagged result of decoding one inference response.
type Decoded[T any] struct {
	// Outcome is the decode tag.
	Outcome Outcome

	// Value is populated only when Outcome is DecodeOK.
	Value T

	// Err explains an unparseable payload.
	Err error
}

var validate = validator.New()

// Decode extracts, parses, and validates a JSON payload of shape T
// from raw model output.
//
// Description:
//
//	Models wrap JSON in markdown fences and prose often enough that a
//	bare Unmarshal is not good enough. Decode strips fences, isolates
//	the outermost JSON object, unmarshals, and runs struct validation.
//	Any failure produces the unparseable variant rather than an error
//	return; the caller's contract is to degrade, not to abort.
//
// Inputs:
//
//	raw - Raw inference backend output.
//
// Outputs:
//
//	Decoded[T] - Tagged decode result.
func Decode[T any](raw string) Decoded[T] {
	var out Decoded[T]

	payload, ok := extractJSON(raw)
	if !ok {
		out.Outcome = DecodeUnparseable
		out.Err = fmt.Errorf("no JSON object found in response (%d bytes)", len(raw))
		return out
	}

	if err := json.Unmarshal([]byte(payload), &out.Value); err != nil {
		out.Outcome = DecodeUnparseable
		out.Err = fmt.Errorf("response is not valid JSON: %w", err)
		return out
	}

	if err := validate.Struct(&out.Value); err != nil {
		out.Outcome = DecodeUnparseable
		out.Err = fmt.Errorf("response shape validation failed: %w", err)
		return out
	}

	out.Outcome = DecodeOK
	return out
}

// extractJSON isolates the outermost JSON object in raw model output,
// tolerating markdown fences and surrounding prose.
func extractJSON(raw string) (string, bool) {
	text := strings.TrimSpace(raw)

	// Strip a markdown fence if the whole payload is wrapped in one.
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
