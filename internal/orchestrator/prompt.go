package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"Minerva_2.0/internal/models"
)

// buildRoutingPrompt renders the single instruction sent to the model each
// turn: the agent catalog with parameter schemas, per-agent extraction
// rules, the bounded turn history, the parameters gathered so far, and a
// strict description of the JSON shape the model must answer with.
func buildRoutingPrompt(agents []models.AgentDescriptor, history []Turn, accumulated map[string]interface{}) string {
	var sb strings.Builder

	sb.WriteString("You are the routing supervisor of a multi-agent assistant. ")
	sb.WriteString("Decide which agent should handle the user's request and extract the parameters that agent requires.\n\n")

	sb.WriteString("## Available agents\n")
	for _, a := range agents {
		sb.WriteString(fmt.Sprintf("- id: %s\n  name: %s\n  description: %s\n", a.ID, a.Name, a.Description))
		if len(a.Capabilities) > 0 {
			sb.WriteString("  capabilities: " + strings.Join(a.Capabilities, ", ") + "\n")
		}
		if len(a.Parameters) == 0 {
			sb.WriteString("  parameters: none\n")
			continue
		}
		sb.WriteString("  parameters:\n")
		for _, p := range a.Parameters {
			req := "optional"
			if p.Required {
				req = "required"
			}
			sb.WriteString(fmt.Sprintf("    - %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description))
		}
	}

	sb.WriteString("\n## Extraction rules\n")
	sb.WriteString("- Choose exactly one agent id from the catalog, or null when no agent clearly fits.\n")
	sb.WriteString("- Extract parameter values only from what the user actually said; never invent values.\n")
	sb.WriteString("- Respect each parameter's declared type (string, int, float, bool, list).\n")
	sb.WriteString("- Omit parameters the user has not provided; do not fill them with null or placeholders.\n")
	sb.WriteString("- confidence is your certainty in [0,1] that the chosen agent and extracted parameters are correct and complete.\n")
	sb.WriteString("- When information is missing or the intent is unclear, set decision to \"clarify\" and ask for exactly what is missing.\n")

	if len(accumulated) > 0 {
		known, _ := json.Marshal(accumulated)
		sb.WriteString("\n## Parameters already gathered in this conversation\n")
		sb.Write(known)
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Conversation so far\n")
	for _, t := range history {
		sb.WriteString(fmt.Sprintf("%s: %s\n", t.Role, t.Text))
	}

	sb.WriteString("\n## Output format\n")
	sb.WriteString("Answer with a single JSON object and nothing else:\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"decision\": \"dispatch\" or \"clarify\",\n")
	sb.WriteString("  \"agent_id\": \"<agent id>\" or null,\n")
	sb.WriteString("  \"confidence\": <number in [0,1]>,\n")
	sb.WriteString("  \"reasoning\": \"<one sentence>\",\n")
	sb.WriteString("  \"parameters\": { <extracted parameters> },\n")
	sb.WriteString("  \"questions\": [ \"<clarifying question>\" ]\n")
	sb.WriteString("}\n")

	return sb.String()
}
