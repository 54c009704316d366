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

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPToolClient invokes tools over the Tool Service's HTTP API.
//
// Thread Safety: safe for concurrent use.
type HTTPToolClient struct {
	baseURL string
	client  *http.Client
}

// invokeRequest is the Tool Service request body.
type invokeRequest struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// NewHTTPToolClient creates a client for the Tool Service at baseURL.
func NewHTTPToolClient(baseURL string) *HTTPToolClient {
	return &HTTPToolClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Invoke implements ToolClient.
//
// Description:
//
//	POSTs {tool, parameters} to /v1/tools/invoke and decodes the
//	InvocationResult envelope. A non-2xx status with a decodable
//	envelope is returned as a failed result rather than a transport
//	error, so tool-level failures keep their messages.
func (h *HTTPToolClient) Invoke(ctx context.Context, toolName string, params map[string]any) (*InvocationResult, error) {
	body, err := json.Marshal(invokeRequest{Tool: toolName, Parameters: params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.baseURL+"/v1/tools/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool service call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read tool response: %w", err)
	}

	var result InvocationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("tool service returned status %d with unparseable body: %w",
			resp.StatusCode, err)
	}
	return &result, nil
}
