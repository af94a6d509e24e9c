package core

import (
	"maps"

	"context"

	"github.com/citysense-ai/citysense/logging"
)

// RunContext encapsulates the mutable, per-turn execution scope passed to an
// Agent's Run method. It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (session Key, RunID, Agent info)
//   - Input user Content
//   - The event emission channel and persistence resume signal
//   - Backing services (session, memory) for persistence concerns
//   - A working Session snapshot and pending StateDelta to commit
//   - Branch label for hierarchical fan-out
//
// State mutations performed via SetState accumulate in StateDelta until an
// emitted event carries them; the coordinator applies the delta to the store.
// Cloning produces an isolated delta buffer while keeping references to the
// underlying services.
type RunContext struct {
	Context      context.Context
	Key          SessionKey
	RunID        string
	Agent        AgentInfo
	UserContent  Content
	Emit         chan<- Event
	Resume       <-chan struct{}
	SessionStore SessionStore
	MemoryStore  MemoryStore
	Session      *Session
	StateDelta   map[string]any
	Branch       string

	*loggerAdapter
}

// NewRunContext constructs a RunContext with an empty state delta.
func NewRunContext(
	ctx context.Context,
	key SessionKey,
	runID string,
	agent AgentInfo,
	userContent Content,
	emit chan<- Event,
	resume <-chan struct{},
	sess *Session,
	sessionStore SessionStore,
	memoryStore MemoryStore,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		Key:           key,
		RunID:         runID,
		Agent:         agent,
		UserContent:   userContent,
		Emit:          emit,
		Resume:        resume,
		Session:       sess,
		SessionStore:  sessionStore,
		MemoryStore:   memoryStore,
		StateDelta:    map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done mirrors context.Context's Done.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState returns a staged (delta) value if present, else the persisted
// session value. The boolean reports whether a value was found.
func (rc *RunContext) GetState(k string) (any, bool) {
	if v, ok := rc.StateDelta[k]; ok {
		return v, true
	}
	if rc.Session != nil {
		return rc.Session.GetState(k)
	}
	return nil, false
}

// SetState stages a state mutation in the in-memory delta buffer. The change
// is persisted when an emitted event merges it.
func (rc *RunContext) SetState(k string, v any) { rc.StateDelta[k] = v }

// ApplyStateDelta merges all pairs from d into the staged StateDelta.
func (rc *RunContext) ApplyStateDelta(d map[string]any) {
	maps.Copy(rc.StateDelta, d)
}

// SearchMemory queries the MemoryStore for relevant content scoped to this
// session's app and user.
func (rc *RunContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	if rc.MemoryStore == nil {
		return []SearchResult{}, nil
	}
	return rc.MemoryStore.Search(rc.Key.App, rc.Key.User, q, limit)
}

// RefreshSession reloads the session snapshot from the SessionStore.
func (rc *RunContext) RefreshSession() error {
	if rc.SessionStore == nil {
		return nil
	}
	s, err := rc.SessionStore.Get(rc.Key)
	if err != nil {
		return err
	}
	rc.Session = s
	return nil
}

// GetSessionHistory returns all historical events for the session.
func (rc *RunContext) GetSessionHistory() []Event {
	if rc.Session == nil {
		return []Event{}
	}
	return rc.Session.GetEvents()
}

// Clone returns a shallow copy with a deep-copied delta buffer. It shares
// service pointers and is safe for speculative processing.
func (rc *RunContext) Clone() *RunContext {
	c := &RunContext{
		Context:       rc.Context,
		Key:           rc.Key,
		RunID:         rc.RunID,
		Agent:         rc.Agent,
		UserContent:   rc.UserContent,
		Emit:          rc.Emit,
		Resume:        rc.Resume,
		SessionStore:  rc.SessionStore,
		MemoryStore:   rc.MemoryStore,
		Session:       rc.Session,
		StateDelta:    map[string]any{},
		Branch:        rc.Branch,
		loggerAdapter: rc.loggerAdapter,
	}
	maps.Copy(c.StateDelta, rc.StateDelta)
	return c
}

// WithBranch clones the context and sets the Branch label to b.
func (rc *RunContext) WithBranch(b string) *RunContext {
	c := rc.Clone()
	c.Branch = b
	return c
}

// NewChildContext derives a context for a nested / child execution path. It
// replaces the Emit & Resume channels, resets the pending StateDelta buffer,
// and optionally sets a branch label if non-empty. Use in composite agents to
// intercept or isolate child output without mutating the parent's transient
// buffers.
func (rc *RunContext) NewChildContext(emit chan<- Event, resume <-chan struct{}, branch string) *RunContext {
	finalBranch := rc.Branch
	if branch != "" {
		finalBranch = branch
	}
	return &RunContext{
		Context:       rc.Context,
		Key:           rc.Key,
		RunID:         rc.RunID,
		Agent:         rc.Agent,
		UserContent:   rc.UserContent,
		Emit:          emit,
		Resume:        resume,
		SessionStore:  rc.SessionStore,
		MemoryStore:   rc.MemoryStore,
		Session:       rc.Session,
		StateDelta:    map[string]any{}, // fresh buffer
		Branch:        finalBranch,
		loggerAdapter: rc.loggerAdapter,
	}
}

// EmitEvent merges the pending StateDelta into ev.Actions, sends it on the
// Emit channel, then resets the buffer. If the context is cancelled before
// emission it returns the cancellation error.
func (rc *RunContext) EmitEvent(ev Event) error {
	if len(rc.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		maps.Copy(ev.Actions.StateDelta, rc.StateDelta)
	}

	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
	}

	rc.StateDelta = map[string]any{}

	return nil
}

// WaitForResume blocks until the Resume channel signals or the context is
// cancelled. If Resume is nil it returns immediately.
func (rc *RunContext) WaitForResume() error {
	if rc.Resume == nil {
		return nil
	}
	select {
	case <-rc.Resume:
		return nil
	case <-rc.Context.Done():
		return rc.Context.Err()
	}
}
