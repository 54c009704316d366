// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolcat defines the tool catalog: the set of externally
// callable business operations, each with a parameter schema, risk
// level, and concurrency/auto-execution policy.
//
// The catalog is the engine's source of truth for risk and concurrency.
// Risk levels on inference-proposed actions are always replaced by the
// catalog entry's risk level before any policy decision is made.
package toolcat

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	// Name is the parameter key.
	Name string `yaml:"name" validate:"required"`

	// Type is the expected value type: string, int, or bool.
	Type string `yaml:"type" validate:"required,oneof=string int bool"`

	// Required marks parameters the tool cannot run without.
	Required bool `yaml:"required"`

	// Description is shown to the inference backend in the tool summary.
	Description string `yaml:"description"`
}

// ToolSpec is one catalog entry.
type ToolSpec struct {
	// Name is the unique tool identifier (e.g. "check_availability").
	Name string `yaml:"name" validate:"required"`

	// Description explains what the tool does.
	Description string `yaml:"description"`

	// Parameters is the tool's parameter schema.
	Parameters []ParamSpec `yaml:"parameters" validate:"dive"`

	// RiskLevel is low, medium, or high.
	RiskLevel string `yaml:"risk_level" validate:"required,oneof=low medium high"`

	// AutoExecuteThreshold is the minimum confidence (0-100) for
	// auto-execution of this tool. The effective floor is the stricter
	// of this and the global policy floor. Only meaningful for low-risk
	// tools; policy never auto-executes medium or high risk regardless
	// of this value.
	AutoExecuteThreshold int `yaml:"auto_execute_threshold" validate:"min=0,max=100"`

	// MaxConcurrent caps concurrent invocations of this tool.
	// Lookups typically allow 2-3; state-mutating tools allow 1.
	MaxConcurrent int `yaml:"max_concurrent" validate:"min=1"`

	// Idempotent marks tools that are safe to retry once on failure.
	// Retries only ever apply to low-risk idempotent tools.
	Idempotent bool `yaml:"idempotent"`
}

// RequiredParams returns the names of required parameters.
func (t *ToolSpec) RequiredParams() []string {
	var names []string
	for _, p := range t.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// Catalog is an immutable, name-indexed set of tool specs.
//
// Thread Safety: Catalog is read-only after construction and safe for
// concurrent use.
type Catalog struct {
	byName map[string]*ToolSpec
	order  []string
}

// catalogFile is the YAML file shape.
type catalogFile struct {
	Tools []ToolSpec `yaml:"tools" validate:"required,min=1,dive"`
}

var validate = validator.New()

// NewCatalog builds a catalog from specs.
//
// Inputs:
//
//	specs - Tool specs. Names must be unique.
//
// Outputs:
//
//	*Catalog - The indexed catalog.
//	error - Non-nil on duplicate names or validation failure.
func NewCatalog(specs []ToolSpec) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]*ToolSpec, len(specs))}
	for i := range specs {
		spec := specs[i]
		if err := validate.Struct(&spec); err != nil {
			return nil, fmt.Errorf("invalid tool spec %q: %w", spec.Name, err)
		}
		if _, ok := c.byName[spec.Name]; ok {
			return nil, fmt.Errorf("duplicate tool name %q", spec.Name)
		}
		c.byName[spec.Name] = &spec
		c.order = append(c.order, spec.Name)
	}
	return c, nil
}

// LoadCatalog reads a catalog from a YAML file.
//
// Description:
//
//	The file lists tools under a top-level "tools" key. Every entry is
//	validated before the catalog is built so a malformed file fails
//	loudly at startup rather than quietly at dispatch time.
//
// Inputs:
//
//	path - Path to the YAML catalog file.
//
// Outputs:
//
//	*Catalog - The loaded catalog.
//	error - Non-nil on read, parse, or validation failure.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool catalog %s: %w", path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tool catalog %s: %w", path, err)
	}
	if len(file.Tools) == 0 {
		return nil, fmt.Errorf("tool catalog %s defines no tools", path)
	}
	return NewCatalog(file.Tools)
}

// Get returns the spec for a tool name.
func (c *Catalog) Get(name string) (*ToolSpec, bool) {
	spec, ok := c.byName[name]
	return spec, ok
}

// Names returns all tool names in declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.byName)
}

// PromptSummary renders a compact catalog description for inference
// prompts: one line per tool with parameters and risk level.
func (c *Catalog) PromptSummary() string {
	var sb strings.Builder
	for _, name := range c.order {
		spec := c.byName[name]
		var params []string
		for _, p := range spec.Parameters {
			if p.Required {
				params = append(params, p.Name+" (required)")
			} else {
				params = append(params, p.Name)
			}
		}
		sort.Strings(params)
		fmt.Fprintf(&sb, "- %s: %s [risk=%s, params: %s]\n",
			spec.Name, spec.Description, spec.RiskLevel, strings.Join(params, ", "))
	}
	return sb.String()
}

// DefaultCatalog returns the built-in booking-desk tool set.
//
// Description:
//
//	Used when no catalog file is configured. Lookup tools are low risk
//	and allow a few concurrent calls; state-mutating tools are serialized
//	and require confirmation by risk level.
func DefaultCatalog() *Catalog {
	specs := []ToolSpec{
		{
			Name:        "check_availability",
			Description: "Look up room/slot availability for a date range",
			Parameters: []ParamSpec{
				{Name: "check_in", Type: "string", Required: true, Description: "start date"},
				{Name: "check_out", Type: "string", Required: true, Description: "end date"},
				{Name: "party_size", Type: "int", Description: "number of guests"},
			},
			RiskLevel:            "low",
			AutoExecuteThreshold: 95,
			MaxConcurrent:        3,
			Idempotent:           true,
		},
		{
			Name:        "generate_quote",
			Description: "Produce a price quote for the requested stay",
			Parameters: []ParamSpec{
				{Name: "check_in", Type: "string", Required: true, Description: "start date"},
				{Name: "check_out", Type: "string", Required: true, Description: "end date"},
				{Name: "party_size", Type: "int", Required: true, Description: "number of guests"},
				{Name: "budget", Type: "string", Description: "stated budget"},
			},
			RiskLevel:            "low",
			AutoExecuteThreshold: 95,
			MaxConcurrent:        2,
			Idempotent:           true,
		},
		{
			Name:        "send_followup_email",
			Description: "Draft and send a follow-up email to the customer",
			Parameters: []ParamSpec{
				{Name: "email", Type: "string", Required: true, Description: "recipient address"},
				{Name: "summary", Type: "string", Description: "what to include"},
			},
			RiskLevel:     "medium",
			MaxConcurrent: 1,
		},
		{
			Name:        "place_booking",
			Description: "Create a confirmed booking (charges may apply)",
			Parameters: []ParamSpec{
				{Name: "check_in", Type: "string", Required: true, Description: "start date"},
				{Name: "check_out", Type: "string", Required: true, Description: "end date"},
				{Name: "party_size", Type: "int", Required: true, Description: "number of guests"},
				{Name: "name", Type: "string", Required: true, Description: "customer name"},
			},
			RiskLevel:     "high",
			MaxConcurrent: 1,
		},
	}

	catalog, err := NewCatalog(specs)
	if err != nil {
		// The built-in specs are fixed; a failure here is a programming error.
		panic(fmt.Sprintf("default tool catalog invalid: %v", err))
	}
	return catalog
}
