// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIClient()
	require.Error(t, err)
}

func TestNewOpenAIClientFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_MODEL", "local-model")

	c, err := NewOpenAIClient()
	require.NoError(t, err)
	assert.Equal(t, "local-model", c.model)
}

func TestGenerateAgainstCompatibleBackend(t *testing.T) {
	var gotModel string
	var gotMessages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel, _ = req["model"].(string)
		if msgs, ok := req["messages"].([]any); ok {
			gotMessages = len(msgs)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"intents":[]}`}},
			},
		})
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_MODEL", "local-model")
	t.Setenv("OPENAI_BASE_URL", server.URL+"/v1")

	c, err := NewOpenAIClient()
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "classify this", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, `{"intents":[]}`, out)
	assert.Equal(t, "local-model", gotModel)
	// System prompt plus the user prompt.
	assert.Equal(t, 2, gotMessages)
}

func TestGenerateEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", server.URL+"/v1")

	c, err := NewOpenAIClient()
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "classify this", GenerationParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
