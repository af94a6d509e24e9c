package session

import (
	"sync"

	"github.com/citysense-ai/citysense/core"
)

// InMemoryStore is a volatile SessionStore keeping sessions in a process
// local map keyed by the (app, user, id) triple. It is safe for concurrent
// access. Returned sessions are clones so callers cannot mutate internal
// state behind the store's back.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create allocates (or overwrites) a session for the given key.
func (s *InMemoryStore) Create(key core.SessionKey) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := core.NewSession(key)
	s.sessions[key.String()] = sess
	return sess.Clone(), nil
}

// Get returns a clone of an existing session, or ErrSessionNotFound.
func (s *InMemoryStore) Get(key core.SessionKey) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key.String()]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Update stores a clone of the provided session snapshot.
func (s *InMemoryStore) Update(sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Key.String()] = sess.Clone()
	return nil
}

// AppendEvent adds an event to an existing session's history.
func (s *InMemoryStore) AppendEvent(key core.SessionKey, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key.String()]
	if !ok {
		return core.ErrSessionNotFound
	}
	sess.AddEvent(ev)
	return nil
}

// ApplyDelta merges a key/value delta into the session state.
func (s *InMemoryStore) ApplyDelta(key core.SessionKey, delta map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key.String()]
	if !ok {
		return core.ErrSessionNotFound
	}
	sess.MergeState(delta)
	return nil
}
