package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"research-agent/internal/llm"
)

// Turn roles.
const (
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
	RoleTool      = llm.RoleTool
)

// Turn is one entry of a conversation.
type Turn struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
}

// State is the conversation loop state of a session.
type State int

const (
	// Idle means the session is waiting for user input.
	Idle State = iota
	// Generating means a turn is being resolved.
	Generating
)

func (s State) String() string {
	if s == Generating {
		return "generating"
	}
	return "idle"
}

// Session owns the turns of one conversation.
// turnMu serializes whole turns; mu guards the fields below it.
type Session struct {
	ID        string
	CreatedAt time.Time

	turnMu sync.Mutex

	mu    sync.RWMutex
	turns []Turn
	state State
}

func newSession(id string) *Session {
	return &Session{ID: id, CreatedAt: time.Now()}
}

// Turns returns a copy of the committed turns.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of committed turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// State returns the current loop state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) commit(turns []Turn) {
	s.mu.Lock()
	s.turns = turns
	s.mu.Unlock()
}

func (s *Session) clear() {
	s.commit(nil)
}

// SessionStore holds live sessions in memory. Safe for concurrent use.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session with id, creating it if needed.
// An empty id creates a session with a fresh UUID.
func (s *SessionStore) GetOrCreate(id string) (*Session, bool) {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, false
	}
	sess = newSession(id)
	s.sessions[id] = sess
	return sess, true
}

// Get returns the session with id or ErrNotFound.
func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes the session. It reports whether the session existed.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// trimHistory keeps at most max turns by evicting whole exchanges from the front.
// The kept history always starts at a user turn. If the newest exchange alone
// exceeds max it is kept intact.
func trimHistory(turns []Turn, max int) []Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	lastUser := -1
	for i := len(turns) - max; i < len(turns); i++ {
		if turns[i].Role == RoleUser {
			out := make([]Turn, len(turns)-i)
			copy(out, turns[i:])
			return out
		}
	}
	for i := len(turns) - max - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			lastUser = i
			break
		}
	}
	if lastUser < 0 {
		return turns
	}
	out := make([]Turn, len(turns)-lastUser)
	copy(out, turns[lastUser:])
	return out
}
