package memory

import (
	"context"
	"math"
	"sync"
)

// InMemoryExactStore is a map-backed ExactStore used in development mode
// and in tests, where no Redis is available.
type InMemoryExactStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewInMemoryExactStore() *InMemoryExactStore {
	return &InMemoryExactStore{entries: make(map[string]Entry)}
}

func (s *InMemoryExactStore) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[fingerprint]
	return entry, ok, nil
}

func (s *InMemoryExactStore) Put(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Fingerprint] = entry
	return nil
}

// Len reports the number of stored entries, for the stats endpoint.
func (s *InMemoryExactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// InMemorySemanticStore is a SemanticStore that keeps vectors in a slice
// and answers searches with a linear cosine-distance scan. Suitable for
// development mode and tests only.
type InMemorySemanticStore struct {
	mu      sync.RWMutex
	entries map[string]semanticRow
}

type semanticRow struct {
	entry  Entry
	vector []float32
}

func NewInMemorySemanticStore() *InMemorySemanticStore {
	return &InMemorySemanticStore{entries: make(map[string]semanticRow)}
}

func (s *InMemorySemanticStore) Put(ctx context.Context, entry Entry, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Fingerprint] = semanticRow{entry: entry, vector: vector}
	return nil
}

func (s *InMemorySemanticStore) Search(ctx context.Context, vector []float32, topK int) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []Candidate
	for _, row := range s.entries {
		candidates = append(candidates, Candidate{
			Entry:    row.entry,
			Distance: cosineDistance(vector, row.vector),
		})
	}
	// Keep only the topK closest.
	for len(candidates) > topK {
		worst := 0
		for i, c := range candidates {
			if c.Distance > candidates[worst].Distance {
				worst = i
			}
		}
		candidates = append(candidates[:worst], candidates[worst+1:]...)
	}
	return candidates, nil
}

// Len reports the number of stored entries, for the stats endpoint.
func (s *InMemorySemanticStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// cosineDistance returns 1 - cosine similarity. Mismatched or zero-length
// vectors are treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
