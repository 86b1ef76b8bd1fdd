package orchestrator

import (
	"sync"
	"time"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the mutable per-conversation record. It is only
// touched while the owning conversation's lock is held.
type ConversationState struct {
	Turns []Turn
	// CurrentAgentID is sticky across turns until dispatch or reset.
	CurrentAgentID string
	// AccumulatedParameters merges extracted parameters across turns.
	// A field, once filled, is never erased by a later turn's null.
	AccumulatedParameters map[string]interface{}
}

type conversation struct {
	mu    sync.Mutex
	state ConversationState
}

// ConversationManager owns all conversation state and enforces the
// one-turn-in-flight-per-conversation rule: callers lock a conversation
// for the whole orchestration step so concurrent turns for the same id
// cannot interleave and lose parameter updates.
type ConversationManager struct {
	mu            sync.Mutex
	conversations map[string]*conversation
	historyLimit  int
}

// NewConversationManager creates a manager that trims turn history to
// historyLimit entries (default 10 when non-positive).
func NewConversationManager(historyLimit int) *ConversationManager {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &ConversationManager{
		conversations: make(map[string]*conversation),
		historyLimit:  historyLimit,
	}
}

// acquire returns the conversation for id, creating it on first use, with
// its lock held. The caller must release it when the turn completes.
func (m *ConversationManager) acquire(id string) *conversation {
	m.mu.Lock()
	c, ok := m.conversations[id]
	if !ok {
		c = &conversation{state: ConversationState{
			AccumulatedParameters: make(map[string]interface{}),
		}}
		m.conversations[id] = c
	}
	m.mu.Unlock()

	c.mu.Lock()
	return c
}

func (c *conversation) release() {
	c.mu.Unlock()
}

// appendTurn adds a turn and trims history to the bound. Caller holds the
// conversation lock.
func (c *conversation) appendTurn(limit int, role, text string) {
	c.state.Turns = append(c.state.Turns, Turn{Role: role, Text: text, Timestamp: time.Now()})
	if len(c.state.Turns) > limit {
		c.state.Turns = c.state.Turns[len(c.state.Turns)-limit:]
	}
}

// mergeParameters folds newly extracted parameters into the accumulated
// set. Nil values and empty strings never overwrite a known field.
func (c *conversation) mergeParameters(extracted map[string]interface{}) {
	for k, v := range extracted {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		c.state.AccumulatedParameters[k] = v
	}
}

// Reset discards the conversation's state entirely.
func (m *ConversationManager) Reset(id string) {
	m.mu.Lock()
	c, ok := m.conversations[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	c.mu.Lock()
	c.state = ConversationState{AccumulatedParameters: make(map[string]interface{})}
	c.mu.Unlock()
}

// ClearAfterDispatch ends the current topic after a successful dispatch:
// accumulated parameters and the sticky agent are dropped, turn history is
// kept so follow-up messages retain context.
func (m *ConversationManager) ClearAfterDispatch(id string) {
	m.mu.Lock()
	c, ok := m.conversations[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	c.mu.Lock()
	c.state.CurrentAgentID = ""
	c.state.AccumulatedParameters = make(map[string]interface{})
	c.mu.Unlock()
}

// History returns a copy of the conversation's retained turns, oldest
// first. An unknown id yields nil.
func (m *ConversationManager) History(id string) []Turn {
	m.mu.Lock()
	c, ok := m.conversations[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.state.Turns...)
}

// Count returns the number of live conversations, for the stats endpoint.
func (m *ConversationManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}
