package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by SessionStore.Get when no session exists
// for the requested key. Callers decide whether to create one or surface the
// absence (the HTTP history endpoint maps it to 404).
var ErrSessionNotFound = errors.New("session not found")

// SessionKey addresses a session by the (application, user, session id)
// triple. All three components participate in identity; the same session id
// under a different user is a different session.
type SessionKey struct {
	App  string `json:"app"`
	User string `json:"user"`
	ID   string `json:"id"`
}

// String renders the key as "app/user/id" for logging and map indexing.
func (k SessionKey) String() string { return fmt.Sprintf("%s/%s/%s", k.App, k.User, k.ID) }

// Session represents a conversational container tracking mutable key/value
// scratch state plus an ordered event history. It is safe for concurrent access.
//
// Contract:
//   - State mutations update the Updated timestamp
//   - GetEvents returns a defensive copy to avoid external mutation
//   - GetConversationHistory filters events to user/assistant/tool roles and
//     excludes partial streaming fragments
//   - Clone performs deep copies of maps/slices for safe divergence
type Session struct {
	Key     SessionKey     `json:"key"`
	State   map[string]any `json:"state"`
	Events  []Event        `json:"events"`
	Created time.Time      `json:"created"`
	Updated time.Time      `json:"updated"`
	mu      sync.RWMutex
}

// NewSession creates an empty session for the given key.
func NewSession(key SessionKey) *Session {
	now := time.Now()
	return &Session{Key: key, State: map[string]any{}, Events: []Event{}, Created: now, Updated: now}
}

// GetState returns the value and existence flag for a scratch state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// SetState sets a key/value pair in scratch state updating the Updated timestamp.
func (s *Session) SetState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State[key] = value
	s.Updated = time.Now()
}

// MergeState merges the provided key/value pairs into State.
func (s *Session) MergeState(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		s.State[k] = v
	}
	s.Updated = time.Now()
}

// AddEvent appends an event to the history updating the Updated timestamp.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now()
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// GetConversationHistory returns filtered events suitable for providing
// conversational context to models (excludes partials and non-conversational roles).
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := map[string]bool{"user": true, "assistant": true, "tool": true}
	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil || !allowed[ev.Content.Role] {
			continue
		}
		if ev.IsPartial() {
			continue
		}
		res = append(res, ev)
	}
	return res
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{Key: s.Key, State: make(map[string]any, len(s.State)), Events: make([]Event, len(s.Events)), Created: s.Created, Updated: s.Updated}
	for k, v := range s.State {
		clone.State[k] = v
	}
	copy(clone.Events, s.Events)
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
// Get returns ErrSessionNotFound for keys never created; callers that want
// load-or-create semantics pair Get with Create explicitly.
type SessionStore interface {
	Create(key SessionKey) (*Session, error)
	Get(key SessionKey) (*Session, error)
	Update(sess *Session) error
	AppendEvent(key SessionKey, event Event) error
	ApplyDelta(key SessionKey, delta map[string]any) error
}
