// Package citysense provides a high-level façade over the conditions research
// pipeline and its coordinator. Most applications interact with this package
// by:
//  1. Creating a CitySense via New() with a model (optionally overriding the
//     default in-memory stores)
//  2. Calling Chat() per conversational turn
//  3. Reading past turns back via History()
//
// The façade delegates orchestration to pipeline.Coordinator while keeping
// setup ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a SQLite session store, a
// search provider and a structured logger.
package citysense

import (
	"context"
	"time"

	"github.com/citysense-ai/citysense/conditions"
	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/location"
	"github.com/citysense-ai/citysense/logging"
	"github.com/citysense-ai/citysense/memory"
	"github.com/citysense-ai/citysense/model"
	"github.com/citysense-ai/citysense/pipeline"
	"github.com/citysense-ai/citysense/retry"
	"github.com/citysense-ai/citysense/search"
	"github.com/citysense-ai/citysense/session"
)

// Options configures the CitySense instance.
type Options struct {
	// Locator performs IP geolocation when the client supplies no coordinates.
	Locator *location.Resolver
	// Search provides web search to the research agents; nil degrades to a
	// not-configured tool result.
	Search search.Provider
	// Retry wraps all model calls.
	Retry *retry.Executor
	// ResearchTimeout bounds the parallel research stage (0 = unbounded).
	ResearchTimeout time.Duration

	// Stores (defaults to in-memory implementations if not provided)
	SessionStore core.SessionStore
	MemoryStore  core.MemoryStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// CitySense aggregates the assembled agent tree and its coordinator.
type CitySense struct {
	coordinator *pipeline.Coordinator
}

// New assembles the research pipeline around the given model with optional
// overrides. Any unset service is initialized with an in-memory implementation.
func New(llm model.Model, optFns ...func(o *Options)) (*CitySense, error) {
	opts := Options{
		Locator:      location.NewResolver(),
		SessionStore: session.NewInMemoryStore(),
		MemoryStore:  memory.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	tree, err := conditions.BuildPipeline(conditions.Config{
		Model:           llm,
		Locator:         opts.Locator,
		Search:          opts.Search,
		Retry:           opts.Retry,
		ResearchTimeout: opts.ResearchTimeout,
	})
	if err != nil {
		return nil, err
	}

	coord := pipeline.NewCoordinator(tree, func(o *pipeline.Options) {
		o.SessionStore = opts.SessionStore
		o.MemoryStore = opts.MemoryStore
		o.Logger = opts.Logger
	})

	return &CitySense{coordinator: coord}, nil
}

// Coordinates are client-supplied GPS coordinates for a turn.
type Coordinates = pipeline.Coordinates

// Chat runs one conversational turn and returns the synthesized report.
func (cs *CitySense) Chat(ctx context.Context, userID, sessionID, message string, coords *Coordinates) (string, error) {
	return cs.coordinator.RunTurn(ctx, userID, sessionID, message, coords)
}

// History returns the full event history of a session.
func (cs *CitySense) History(userID, sessionID string) ([]core.Event, error) {
	return cs.coordinator.History(userID, sessionID)
}

// Coordinator exposes the underlying coordinator for HTTP serving.
func (cs *CitySense) Coordinator() *pipeline.Coordinator { return cs.coordinator }
