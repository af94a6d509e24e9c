package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/citysense-ai/citysense/conditions"
	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/logging"
	"github.com/citysense-ai/citysense/memory"
	"github.com/citysense-ai/citysense/session"
)

// Coordinates are client-supplied GPS coordinates for a turn.
type Coordinates struct {
	Lat float64
	Lng float64
}

// Options holds dependency and configuration overrides passed to NewCoordinator.
type Options struct {
	// App scopes session and memory keys.
	App string
	// FinalAuthor names the agent whose final event becomes the turn's answer.
	FinalAuthor string
	// EventBufferSize sets channel buffering for agent events.
	EventBufferSize int
	// SessionStore persists sessions and their event history.
	SessionStore core.SessionStore
	// MemoryStore receives completed sessions for cross-session recall.
	MemoryStore core.MemoryStore
	Logger      logging.Logger
}

// Coordinator runs one conversational turn at a time per session: it resolves
// the session, persists incoming coordinates and the user message, pumps the
// agent tree's events into the store, and extracts the synthesized answer.
// Public methods are safe for concurrent use; turns on the same session are
// serialized so event ordering in the store matches emission order.
type Coordinator struct {
	agent core.Agent

	app             string
	finalAuthor     string
	eventBufferSize int

	sessionStore core.SessionStore
	memoryStore  core.MemoryStore
	logger       logging.Logger

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// NewCoordinator constructs a Coordinator with optional overrides. By default
// it answers from the synthesis stage and keeps everything in memory.
func NewCoordinator(agent core.Agent, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		App:             "citysense",
		FinalAuthor:     conditions.SynthesizerName,
		EventBufferSize: 100,
		SessionStore:    session.NewInMemoryStore(),
		MemoryStore:     memory.NewInMemoryStore(),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Coordinator{
		agent:           agent,
		app:             opts.App,
		finalAuthor:     opts.FinalAuthor,
		eventBufferSize: opts.EventBufferSize,
		sessionStore:    opts.SessionStore,
		memoryStore:     opts.MemoryStore,
		logger:          opts.Logger,
		sessions:        make(map[string]*sync.Mutex),
	}
}

// RunTurn executes one full turn and returns the synthesized answer. A nil
// coords leaves any previously stored position untouched. When the run
// produces no final message the sentinel text is returned instead of an error.
func (c *Coordinator) RunTurn(ctx context.Context, userID, sessionID, message string, coords *Coordinates) (string, error) {
	key := core.SessionKey{App: c.app, User: userID, ID: sessionID}

	lock := c.sessionLock(key)
	lock.Lock()
	defer lock.Unlock()

	sess, err := c.loadOrCreateSession(key)
	if err != nil {
		return "", err
	}

	if coords != nil {
		sess.SetState(conditions.StateKeyPreciseLocation, map[string]any{
			"lat": coords.Lat,
			"lng": coords.Lng,
		})
		if err := c.sessionStore.Update(sess); err != nil {
			return "", fmt.Errorf("failed to store coordinates: %w", err)
		}
	}

	runID := core.NewID()

	userEvent := core.NewUserMessageEvent(runID, message)
	if err := c.sessionStore.AppendEvent(key, userEvent); err != nil {
		return "", fmt.Errorf("failed to append user event: %w", err)
	}
	sess.AddEvent(userEvent)

	c.logger.Info("turn.start", "run_id", runID, "session_id", sessionID, "user_id", userID)

	finalText, err := c.runPipeline(ctx, key, runID, sess, message)
	if err != nil {
		c.logger.Error("turn.failed", "run_id", runID, "session_id", sessionID, "error", err.Error())
		return "", err
	}

	if finalText == "" {
		finalText = core.NoResponseText
	}

	c.logger.Info("turn.complete", "run_id", runID, "session_id", sessionID)

	go c.commitMemory(key)

	return finalText, nil
}

// History returns the full event history of a session.
func (c *Coordinator) History(userID, sessionID string) ([]core.Event, error) {
	key := core.SessionKey{App: c.app, User: userID, ID: sessionID}
	sess, err := c.sessionStore.Get(key)
	if err != nil {
		return nil, err
	}
	return sess.GetEvents(), nil
}

func (c *Coordinator) loadOrCreateSession(key core.SessionKey) (*core.Session, error) {
	sess, err := c.sessionStore.Get(key)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, core.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sess, err = c.sessionStore.Create(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	c.logger.Info("session.created", "session_id", key.ID, "user_id", key.User)

	return sess, nil
}

// runPipeline drives the agent tree and pumps its events: each event is
// persisted (delta first, then the event itself), merged into the working
// session snapshot, and acknowledged with a resume token so the emitting agent
// may continue. The final answer is the last complete message authored by the
// configured final agent.
func (c *Coordinator) runPipeline(ctx context.Context, key core.SessionKey, runID string, sess *core.Session, message string) (string, error) {
	emit := make(chan core.Event, c.eventBufferSize)
	resume := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runCtx := core.NewRunContext(
		ctx,
		key,
		runID,
		core.AgentInfo{Name: c.agent.Name(), Type: "pipeline"},
		core.NewTextContent("user", message),
		emit,
		resume,
		sess,
		c.sessionStore,
		c.memoryStore,
		c.logger,
	)

	runErr := make(chan error, 1)
	go func() {
		defer close(emit)
		runErr <- c.agent.Run(runCtx)
	}()

	var finalText string
	for ev := range emit {
		if err := c.applyEvent(key, sess, ev); err != nil {
			cancel()
			<-runErr
			return "", err
		}

		if ev.Author == c.finalAuthor && ev.IsFinalResponse() && ev.Content != nil {
			if text := ev.Content.Text(); text != "" {
				finalText = text
			}
		}

		if !ev.IsPartial() {
			select {
			case resume <- struct{}{}:
			case <-ctx.Done():
				<-runErr
				return "", ctx.Err()
			}
		}
	}

	if err := <-runErr; err != nil {
		return "", fmt.Errorf("pipeline execution failed: %w", err)
	}

	return finalText, nil
}

func (c *Coordinator) applyEvent(key core.SessionKey, sess *core.Session, ev core.Event) error {
	if len(ev.Actions.StateDelta) > 0 {
		if err := c.sessionStore.ApplyDelta(key, ev.Actions.StateDelta); err != nil {
			return fmt.Errorf("failed to apply state delta: %w", err)
		}
		sess.MergeState(ev.Actions.StateDelta)
	}

	if !ev.IsPartial() {
		if err := c.sessionStore.AppendEvent(key, ev); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
		sess.AddEvent(ev)
	}

	return nil
}

// commitMemory indexes the finished session for cross-session recall. Failures
// are logged and never surfaced to the caller.
func (c *Coordinator) commitMemory(key core.SessionKey) {
	if c.memoryStore == nil {
		return
	}

	sess, err := c.sessionStore.Get(key)
	if err != nil {
		c.logger.Warn("memory.commit.load_failed", "session_id", key.ID, "error", err.Error())
		return
	}

	if err := c.memoryStore.AddSession(sess); err != nil {
		c.logger.Warn("memory.commit.failed", "session_id", key.ID, "error", err.Error())
	}
}

func (c *Coordinator) sessionLock(key core.SessionKey) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.sessions[key.String()]
	if !ok {
		lock = &sync.Mutex{}
		c.sessions[key.String()] = lock
	}
	return lock
}
