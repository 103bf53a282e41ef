package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"legischat/types"
)

// Session owns the conversation history of one user. At most one question is
// answered per session at a time.
type Session struct {
	ID        string
	CreatedAt time.Time

	busy sync.Mutex

	mu      sync.RWMutex
	history []types.Turn
	state   State
}

func NewSession() *Session {
	return NewSessionWithHistory(nil)
}

// NewSessionWithHistory starts a session from turns supplied by the caller.
func NewSessionWithHistory(history []types.Turn) *Session {
	return &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		history:   append([]types.Turn(nil), history...),
		state:     StateDone,
	}
}

// History returns a copy of the turns so far.
func (s *Session) History() []types.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Turn(nil), s.history...)
}

func (s *Session) Append(turns ...types.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, turns...)
}

// State is the stage of the last or current question.
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

// Registry holds the live sessions of the HTTP interface.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Create() *Session {
	s := NewSession()
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return types.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
