// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package toolcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalogIndexesByName(t *testing.T) {
	c, err := NewCatalog([]ToolSpec{
		{Name: "alpha", RiskLevel: "low", MaxConcurrent: 2},
		{Name: "beta", RiskLevel: "high", MaxConcurrent: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"alpha", "beta"}, c.Names())

	spec, ok := c.Get("beta")
	require.True(t, ok)
	assert.Equal(t, "high", spec.RiskLevel)

	_, ok = c.Get("gamma")
	assert.False(t, ok)
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]ToolSpec{
		{Name: "alpha", RiskLevel: "low", MaxConcurrent: 1},
		{Name: "alpha", RiskLevel: "low", MaxConcurrent: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}

func TestNewCatalogValidatesSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec ToolSpec
	}{
		{"missing name", ToolSpec{RiskLevel: "low", MaxConcurrent: 1}},
		{"bad risk level", ToolSpec{Name: "x", RiskLevel: "extreme", MaxConcurrent: 1}},
		{"zero concurrency", ToolSpec{Name: "x", RiskLevel: "low", MaxConcurrent: 0}},
		{"bad param type", ToolSpec{
			Name: "x", RiskLevel: "low", MaxConcurrent: 1,
			Parameters: []ParamSpec{{Name: "p", Type: "float"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog([]ToolSpec{tt.spec})
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalogFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	content := `
tools:
  - name: check_inventory
    description: Look up stock levels
    risk_level: low
    auto_execute_threshold: 95
    max_concurrent: 3
    idempotent: true
    parameters:
      - name: sku
        type: string
        required: true
  - name: issue_refund
    description: Refund a payment
    risk_level: high
    max_concurrent: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	spec, ok := c.Get("check_inventory")
	require.True(t, ok)
	assert.True(t, spec.Idempotent)
	assert.Equal(t, 95, spec.AutoExecuteThreshold)
	assert.Equal(t, []string{"sku"}, spec.RequiredParams())
}

func TestLoadCatalogFailures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tools: [unclosed"), 0o600))
		_, err := LoadCatalog(path)
		assert.Error(t, err)
	})

	t.Run("empty tool list", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tools: []"), 0o600))
		_, err := LoadCatalog(path)
		assert.Error(t, err)
	})

	t.Run("invalid entry", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "invalid.yaml")
		content := "tools:\n  - name: x\n    risk_level: nope\n    max_concurrent: 1\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		_, err := LoadCatalog(path)
		assert.Error(t, err)
	})
}

func TestRequiredParams(t *testing.T) {
	spec := &ToolSpec{
		Parameters: []ParamSpec{
			{Name: "a", Type: "string", Required: true},
			{Name: "b", Type: "int"},
			{Name: "c", Type: "string", Required: true},
		},
	}
	assert.Equal(t, []string{"a", "c"}, spec.RequiredParams())
}

func TestPromptSummary(t *testing.T) {
	c := DefaultCatalog()
	summary := c.PromptSummary()

	assert.Contains(t, summary, "check_availability")
	assert.Contains(t, summary, "risk=high")
	assert.Contains(t, summary, "check_in (required)")
	// One line per tool.
	lines := strings.Split(strings.TrimRight(summary, "\n"), "\n")
	assert.Equal(t, c.Len(), len(lines))
}

func TestDefaultCatalogShape(t *testing.T) {
	c := DefaultCatalog()
	require.Equal(t, 4, c.Len())

	booking, ok := c.Get("place_booking")
	require.True(t, ok)
	assert.Equal(t, "high", booking.RiskLevel)
	assert.Equal(t, 1, booking.MaxConcurrent)
	assert.False(t, booking.Idempotent)

	lookup, ok := c.Get("check_availability")
	require.True(t, ok)
	assert.Equal(t, "low", lookup.RiskLevel)
	assert.True(t, lookup.Idempotent)
	assert.Equal(t, 3, lookup.MaxConcurrent)
}
