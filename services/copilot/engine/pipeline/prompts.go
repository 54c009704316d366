// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/AleutianAI/AleutianCopilot/services/copilot/datatypes"
)

// extractionPrompt asks for intents and profile deltas from the most
// recent transcript window.
func extractionPrompt(messages []datatypes.TranscriptMessage) string {
	var sb strings.Builder
	sb.WriteString("Extract intents and customer facts from this live call transcript.\n\n")
	writeTranscript(&sb, messages)
	sb.WriteString(`
Respond with ONLY valid JSON:
{"intents":["check_availability","get_quote",...],"profile":{"check_in":"","check_out":"","party_size":0,"budget":"","name":"","email":"","phone":"","preferences":[],"special_requests":[]}}
Omit profile fields you did not observe. Intents name business operations the customer wants.`)
	return sb.String()
}

// stagePrompt asks for the revised narrative stage list. The model sees
// the existing stages so it extends the actual narrative instead of
// inventing a fixed template each run.
func stagePrompt(snap *datatypes.ConversationState) string {
	existing, _ := json.Marshal(snap.Stages)
	profile, _ := json.Marshal(snap.Profile)
	return fmt.Sprintf(`Revise the narrative stages of this sales call.

Detected intents: %s
Customer profile: %s
Existing stages (completed stages are frozen, never change them): %s

Respond with ONLY valid JSON:
{"stages":[{"id":"greeting","label":"Greeting","status":"completed"}],"current_stage_id":"..."}
Stages reflect what actually happened in THIS conversation. Exactly one stage has status "current".`,
		strings.Join(snap.DetectedIntents, ", "), profile, existing)
}

// actionPromptTemplate is the stage-3 prompt. Tool lines come from the
// catalog summary so the model only ever proposes real tools.
var actionPromptTemplate = template.Must(template.New("actions").Parse(
	`Propose next actions for the operator on this live sales call.

Detected intents: {{.Intents}}
Customer profile: {{.Profile}}

Available tools:
{{.ToolSummary}}
Respond with ONLY valid JSON:
{"actions":[{"intent":"","label":"","description":"","tool_name":"","parameters":{},"confidence":0,"priority":0}],"scripts":[{"label":"","text":""}],"insight":{"health_score":0,"concerns":[],"strengths":[],"missing_info":[]}}
Confidence is 0-100. Only propose actions whose required parameters are known or nearly known.
Scripts are short lines the operator can say verbatim.`))

func actionPrompt(snap *datatypes.ConversationState, toolSummary string) (string, error) {
	profile, err := json.Marshal(snap.Profile)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = actionPromptTemplate.Execute(&buf, struct {
		Intents     string
		Profile     string
		ToolSummary string
	}{
		Intents:     strings.Join(snap.DetectedIntents, ", "),
		Profile:     string(profile),
		ToolSummary: toolSummary,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// healthPrompt asks for a single overall health score.
func healthPrompt(snap *datatypes.ConversationState) string {
	var sb strings.Builder
	sb.WriteString("Score the health of this sales conversation from 0 (lost) to 100 (closing).\n\n")
	writeTranscript(&sb, snap.Messages)
	if len(snap.Insight.Concerns) > 0 {
		fmt.Fprintf(&sb, "\nKnown concerns: %s\n", strings.Join(snap.Insight.Concerns, "; "))
	}
	sb.WriteString(`
Respond with ONLY valid JSON: {"health_score":NN}`)
	return sb.String()
}

func writeTranscript(sb *strings.Builder, messages []datatypes.TranscriptMessage) {
	for _, msg := range messages {
		fmt.Fprintf(sb, "[%s] %s\n", msg.Speaker, msg.Text)
	}
}
