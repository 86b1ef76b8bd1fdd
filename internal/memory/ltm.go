package memory

import (
	"context"
	"time"

	"Minerva_2.0/internal/models"
	"Minerva_2.0/pkg/logger"
)

// Entry is one long-term memory record: the canonical task input, the
// worker output it produced, and when it was stored.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	Input       string    `json:"input"`
	Output      string    `json:"output"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExactStore persists entries keyed by task fingerprint.
type ExactStore interface {
	Get(ctx context.Context, fingerprint string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
}

// Candidate is a semantic search result with its distance from the query.
// Lower distance means more similar.
type Candidate struct {
	Entry    Entry
	Distance float64
}

// SemanticStore persists entries alongside an embedding of their input and
// retrieves nearest neighbours for a query vector.
type SemanticStore interface {
	Put(ctx context.Context, entry Entry, vector []float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]Candidate, error)
}

// Embedder turns task input text into a vector for semantic storage.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LongTermMemory is the facade the dispatcher consults before calling a
// worker. Lookups and saves degrade gracefully: any backend failure is
// logged and treated as a miss (lookup) or dropped (save), never surfaced
// to the request path.
type LongTermMemory struct {
	exact       ExactStore
	semantic    SemanticStore
	embedder    Embedder
	maxDistance float64
	topK        int
	log         *logger.Logger
}

// NewLongTermMemory wires the two stores. Either store may be nil when the
// deployment does not configure that tier; lookups against a missing tier
// always miss.
func NewLongTermMemory(exact ExactStore, semantic SemanticStore, embedder Embedder, maxDistance float64, topK int, log *logger.Logger) *LongTermMemory {
	if maxDistance <= 0 {
		maxDistance = 0.3
	}
	if topK <= 0 {
		topK = 5
	}
	return &LongTermMemory{
		exact:       exact,
		semantic:    semantic,
		embedder:    embedder,
		maxDistance: maxDistance,
		topK:        topK,
		log:         log,
	}
}

// Lookup consults the tier selected by the agent's memory strategy and
// returns the cached output on a hit. Strategy "none" and all backend
// errors report a miss.
func (m *LongTermMemory) Lookup(ctx context.Context, agent models.AgentDescriptor, taskName string, params map[string]interface{}, input string) (string, bool) {
	switch agent.Memory {
	case models.MemoryStrategyExact:
		return m.lookupExact(ctx, agent.ID, taskName, params)
	case models.MemoryStrategySemantic:
		return m.lookupSemantic(ctx, agent.ID, input)
	default:
		return "", false
	}
}

func (m *LongTermMemory) lookupExact(ctx context.Context, agentID, taskName string, params map[string]interface{}) (string, bool) {
	if m.exact == nil {
		return "", false
	}
	fp := Fingerprint(agentID, taskName, params)
	entry, ok, err := m.exact.Get(ctx, fp)
	if err != nil {
		m.log.WithAgent(agentID).
			WithError(models.NewSupervisorError(models.CodeCacheUnavailable, "exact store lookup failed", err)).
			Warn("exact memory lookup failed, treating as miss")
		return "", false
	}
	if !ok {
		return "", false
	}
	return entry.Output, true
}

func (m *LongTermMemory) lookupSemantic(ctx context.Context, agentID, input string) (string, bool) {
	if m.semantic == nil || m.embedder == nil {
		return "", false
	}
	vector, err := m.embedder.Embed(ctx, input)
	if err != nil {
		m.log.WithAgent(agentID).WithError(err).Warn("embedding failed, treating as miss")
		return "", false
	}
	candidates, err := m.semantic.Search(ctx, vector, m.topK)
	if err != nil {
		m.log.WithAgent(agentID).
			WithError(models.NewSupervisorError(models.CodeCacheUnavailable, "semantic store search failed", err)).
			Warn("semantic memory lookup failed, treating as miss")
		return "", false
	}

	best, found := pickBest(candidates, m.maxDistance)
	if !found {
		return "", false
	}
	return best.Output, true
}

// pickBest filters candidates by the distance ceiling and breaks ties by
// smallest distance, then by most recent entry.
func pickBest(candidates []Candidate, maxDistance float64) (Entry, bool) {
	var best Candidate
	found := false
	for _, c := range candidates {
		if c.Distance > maxDistance {
			continue
		}
		if !found {
			best = c
			found = true
			continue
		}
		if c.Distance < best.Distance ||
			(c.Distance == best.Distance && c.Entry.CreatedAt.After(best.Entry.CreatedAt)) {
			best = c
		}
	}
	return best.Entry, found
}

// Save stores a successful exchange in the tier selected by the agent's
// memory strategy. Failures are logged but never propagated: a cache write
// must not fail a request that already succeeded.
func (m *LongTermMemory) Save(ctx context.Context, agent models.AgentDescriptor, taskName string, params map[string]interface{}, input, output string) {
	entry := Entry{
		Fingerprint: Fingerprint(agent.ID, taskName, params),
		Input:       input,
		Output:      output,
		CreatedAt:   time.Now(),
	}

	switch agent.Memory {
	case models.MemoryStrategyExact:
		if m.exact == nil {
			return
		}
		if err := m.exact.Put(ctx, entry); err != nil {
			m.log.WithAgent(agent.ID).
				WithError(models.NewSupervisorError(models.CodeCacheUnavailable, "exact store write failed", err)).
				Warn("exact memory save failed")
		}
	case models.MemoryStrategySemantic:
		if m.semantic == nil || m.embedder == nil {
			return
		}
		vector, err := m.embedder.Embed(ctx, input)
		if err != nil {
			m.log.WithAgent(agent.ID).WithError(err).Warn("embedding failed, memory entry dropped")
			return
		}
		if err := m.semantic.Put(ctx, entry, vector); err != nil {
			m.log.WithAgent(agent.ID).
				WithError(models.NewSupervisorError(models.CodeCacheUnavailable, "semantic store write failed", err)).
				Warn("semantic memory save failed")
		}
	}
}
