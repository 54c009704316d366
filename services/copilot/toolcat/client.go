// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolcat

import "context"

// InvocationResult is the Tool Service response contract.
//
// A successful call carries Data and a short human-readable Summary;
// a failed call carries Error. DurationMs is filled by the service.
type InvocationResult struct {
	// Success indicates whether the tool call succeeded.
	Success bool `json:"success"`

	// Data is the raw tool payload, opaque to the engine.
	Data map[string]any `json:"data,omitempty"`

	// Summary is a short human-readable outcome description.
	Summary string `json:"summary,omitempty"`

	// DurationMs is the call duration reported by the service.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// Error is the failure message when Success is false.
	Error string `json:"error,omitempty"`
}

// ToolClient invokes tools against the external Tool Service.
//
// Description:
//
//	The engine treats the Tool Service as opaque: it validates nothing
//	about Data beyond the InvocationResult envelope. Implementations
//	must honor ctx cancellation; the dispatcher wraps every call in a
//	timeout.
//
// Thread Safety: Implementations must be safe for concurrent use. The
// dispatcher enforces per-tool concurrency caps above this interface.
type ToolClient interface {
	// Invoke executes one tool call.
	//
	// Inputs:
	//   ctx - Context carrying the dispatch timeout.
	//   toolName - Catalog tool name.
	//   params - Merged parameters (profile-authoritative).
	//
	// Outputs:
	//   *InvocationResult - The service response envelope.
	//   error - Non-nil on transport failure; treated like Success=false.
	Invoke(ctx context.Context, toolName string, params map[string]any) (*InvocationResult, error)
}
