// Package memory implements the two-tier agent memory: a bounded
// short-term ring per agent and a pluggable long-term store keyed by
// task fingerprint or embedding similarity.
package memory

import (
	"sync"
	"time"
)

// STMRecord is one completed exchange kept in short-term memory.
type STMRecord struct {
	MessageID string    `json:"message_id"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Timestamp time.Time `json:"timestamp"`
}

// ShortTermMemory keeps the most recent exchanges per agent in a fixed-size
// FIFO ring. When the ring is full the oldest record is overwritten.
type ShortTermMemory struct {
	capacity int
	mu       sync.Mutex
	rings    map[string]*ring
}

type ring struct {
	buf   []STMRecord
	head  int // next write position
	count int
}

// NewShortTermMemory creates a store with the given per-agent capacity.
// A non-positive capacity falls back to 10.
func NewShortTermMemory(capacity int) *ShortTermMemory {
	if capacity <= 0 {
		capacity = 10
	}
	return &ShortTermMemory{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Append records an exchange for the agent, evicting the oldest record
// when the ring is at capacity.
func (s *ShortTermMemory) Append(agentID string, rec STMRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rings[agentID]
	if !ok {
		r = &ring{buf: make([]STMRecord, s.capacity)}
		s.rings[agentID] = r
	}
	r.buf[r.head] = rec
	r.head = (r.head + 1) % s.capacity
	if r.count < s.capacity {
		r.count++
	}
}

// Recent returns the agent's records in insertion order, oldest first.
func (s *ShortTermMemory) Recent(agentID string) []STMRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rings[agentID]
	if !ok {
		return nil
	}
	out := make([]STMRecord, 0, r.count)
	start := (r.head - r.count + s.capacity) % s.capacity
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%s.capacity])
	}
	return out
}

// Size returns the number of records held for the agent.
func (s *ShortTermMemory) Size(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rings[agentID]; ok {
		return r.count
	}
	return 0
}

// Sizes returns the record count per agent, for the stats endpoint.
func (s *ShortTermMemory) Sizes() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.rings))
	for id, r := range s.rings {
		out[id] = r.count
	}
	return out
}
