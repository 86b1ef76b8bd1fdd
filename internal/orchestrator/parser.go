package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// routingDecision is the structure the model is instructed to return.
type routingDecision struct {
	Decision   string                 `json:"decision"`
	AgentID    *string                `json:"agent_id"`
	Confidence float64                `json:"confidence"`
	Reasoning  string                 `json:"reasoning"`
	Parameters map[string]interface{} `json:"parameters"`
	Questions  []string               `json:"questions"`
}

// parseRoutingDecision extracts and decodes the JSON block from a raw model
// response. Models wrap their answers in prose and markdown fences often
// enough that the parser has to dig the payload out rather than decode the
// response verbatim.
func parseRoutingDecision(raw string) (routingDecision, error) {
	payload, err := extractJSONBlock(raw)
	if err != nil {
		return routingDecision{}, err
	}

	var decision routingDecision
	if err := json.Unmarshal([]byte(payload), &decision); err != nil {
		return routingDecision{}, fmt.Errorf("decode routing decision: %w", err)
	}

	// Clamp out-of-range confidence rather than rejecting the whole turn.
	if decision.Confidence < 0 {
		decision.Confidence = 0
	}
	if decision.Confidence > 1 {
		decision.Confidence = 1
	}
	if decision.Parameters == nil {
		decision.Parameters = make(map[string]interface{})
	}
	return decision, nil
}

// extractJSONBlock returns the JSON object embedded in raw. It prefers a
// fenced ```json block and otherwise falls back to the outermost brace pair.
func extractJSONBlock(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)

	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		rest := trimmed[idx+3:]
		// Skip the info string ("json", "JSON", ...) up to the first newline.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			trimmed = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object found in model output")
	}
	return trimmed[start : end+1], nil
}
