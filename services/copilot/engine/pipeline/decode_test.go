// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import "testing"

type decodeShape struct {
	Label string `json:"label" validate:"required"`
	Score int    `json:"score" validate:"min=0,max=100"`
}

func TestDecodeCleanJSON(t *testing.T) {
	got := Decode[decodeShape](`{"label":"greeting","score":80}`)
	if got.Outcome != DecodeOK {
		t.Fatalf("Outcome = %v, want ok (err: %v)", got.Outcome, got.Err)
	}
	if got.Value.Label != "greeting" || got.Value.Score != 80 {
		t.Errorf("Value = %+v", got.Value)
	}
}

func TestDecodeMarkdownFence(t *testing.T) {
	raw := "```json\n{\"label\":\"quote\",\"score\":55}\n```"
	got := Decode[decodeShape](raw)
	if got.Outcome != DecodeOK {
		t.Fatalf("Outcome = %v, want ok (err: %v)", got.Outcome, got.Err)
	}
	if got.Value.Label != "quote" {
		t.Errorf("Label = %q", got.Value.Label)
	}
}

func TestDecodeSurroundingProse(t *testing.T) {
	raw := `Sure! Here is the JSON you asked for: {"label":"x","score":1} Hope that helps.`
	got := Decode[decodeShape](raw)
	if got.Outcome != DecodeOK {
		t.Fatalf("Outcome = %v, want ok (err: %v)", got.Outcome, got.Err)
	}
}

func TestDecodeUnparseableVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no JSON at all", "I could not determine the intents."},
		{"truncated JSON", `{"label":"x","score":`},
		{"validation failure", `{"score":150}`}, // missing label, score out of range
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode[decodeShape](tt.raw)
			if got.Outcome != DecodeUnparseable {
				t.Errorf("Outcome = %v, want unparseable", got.Outcome)
			}
			if got.Err == nil {
				t.Error("Err is nil for unparseable payload")
			}
		})
	}
}
