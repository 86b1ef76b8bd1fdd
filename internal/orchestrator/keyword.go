package orchestrator

import (
	"strings"

	"Minerva_2.0/internal/models"
)

// matchByKeywords is the deterministic fallback selector used when the
// model boundary is unavailable. It scores each agent by how many of its
// declared capability tags and routing keywords occur in the text and
// returns the best-scoring agent. Returns false when nothing matches.
func matchByKeywords(text string, agents []models.AgentDescriptor) (models.AgentDescriptor, bool) {
	lowered := strings.ToLower(text)

	var best models.AgentDescriptor
	bestScore := 0
	for _, a := range agents {
		score := 0
		for _, kw := range a.Keywords {
			if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
				score++
			}
		}
		for _, tag := range a.Capabilities {
			if tag != "" && strings.Contains(lowered, strings.ToLower(tag)) {
				score++
			}
		}
		if score > bestScore {
			best = a
			bestScore = score
		}
	}
	return best, bestScore > 0
}
