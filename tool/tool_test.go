package tool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/internal/util"
	"github.com/citysense-ai/citysense/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Schema & Validation Tests --------------------

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	// Success
	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	// Missing required
	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Equal(t, "x", vErr.Field)
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	// Wrong type
	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Contains(t, vErr.Message, "expected type integer")
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return a + b, nil
	})

	tc := core.NewToolContext(dummyRunContext(), "fc1")
	result, err := sumTool.Call(tc, map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})
	tc := core.NewToolContext(dummyRunContext(), "fc2")
	_, err := tTool.Call(tc, map[string]any{})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	tc := core.NewToolContext(dummyRunContext(), "fc3")
	_, err := execTool.Call(tc, map[string]any{})
	assert.Error(t, err)
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
}

func TestFunctionTool_CustomToolErrorPassedThrough(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	rateTool := NewFunctionTool("limited", "Rate limited", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, NewToolError("limited", "slow down", "RATE_LIMITED")
	})
	tc := core.NewToolContext(dummyRunContext(), "fc4")
	_, err := rateTool.Call(tc, map[string]any{})
	toolErr, ok := err.(*ToolError)
	assert.True(t, ok)
	assert.Equal(t, "RATE_LIMITED", toolErr.Code)
}

// -------------------- AgentTool Tests --------------------

// echoAgent emits one state delta plus a final text event and returns.
type echoAgent struct {
	name  string
	delta map[string]any
	reply string
}

func (a *echoAgent) Name() string                       { return a.name }
func (a *echoAgent) Description() string                { return "echo test agent" }
func (a *echoAgent) SetSubAgents(_ ...core.Agent) error { return nil }
func (a *echoAgent) SubAgents() []core.Agent            { return nil }
func (a *echoAgent) Parent() core.Agent                 { return nil }
func (a *echoAgent) FindAgent(name string) core.Agent   { return nil }
func (a *echoAgent) Run(runCtx *core.RunContext) error {
	ev := core.NewMessageEvent(runCtx.RunID, a.name, a.reply)
	if a.delta != nil {
		ev.Actions.StateDelta = a.delta
	}
	if err := runCtx.EmitEvent(ev); err != nil {
		return err
	}
	return runCtx.WaitForResume()
}

func TestAgentTool_ReturnsFinalTextAndForwardsDelta(t *testing.T) {
	child := &echoAgent{
		name:  "AqiResearcher",
		delta: map[string]any{"aqi_research_output": "AQI is 42"},
		reply: "AQI is 42",
	}
	at := NewAgentTool(child)

	assert.Equal(t, "aqiresearcher", at.Name())

	tc := core.NewToolContext(dummyRunContext(), "fc-agent")
	result, err := at.Call(tc, map[string]any{"request": "air quality near Pune"})
	require.NoError(t, err)
	assert.Equal(t, "AQI is 42", result)
	assert.Equal(t, "AQI is 42", tc.Actions().StateDelta["aqi_research_output"])
}

func TestAgentTool_EmptyRequestRejected(t *testing.T) {
	at := NewAgentTool(&echoAgent{name: "X", reply: "y"})
	tc := core.NewToolContext(dummyRunContext(), "fc-empty")
	_, err := at.Call(tc, map[string]any{})
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestAgentTool_SilentAgentYieldsFallbackText(t *testing.T) {
	at := NewAgentTool(&echoAgent{name: "Quiet", reply: ""})
	tc := core.NewToolContext(dummyRunContext(), "fc-quiet")
	result, err := at.Call(tc, map[string]any{"request": "anything"})
	require.NoError(t, err)
	assert.Equal(t, core.NoResponseText, result)
}

// -------------------- Memory Recall Tool Tests --------------------

func TestMemoryRecallTool(t *testing.T) {
	runCtx := dummyRunContext()
	runCtx.MemoryStore.(*memMemoryStore).add("citysense", "alice", "asked about AQI in Pune")

	recall := NewMemoryRecallTool()
	tc := core.NewToolContext(runCtx, "fc-recall")

	res, err := recall.Call(tc, map[string]any{"query": "Pune"})
	require.NoError(t, err)
	assert.Contains(t, res.(string), "asked about AQI in Pune")

	res, err = recall.Call(tc, map[string]any{"query": "nothing matches this"})
	require.NoError(t, err)
	assert.Equal(t, "No relevant past conversations found.", res)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}

// -------------------- Test Fixtures --------------------

type memSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]*core.Session{}}
}

func (s *memSessionStore) Create(key core.SessionKey) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := core.NewSession(key)
	s.sessions[key.String()] = sess
	return sess.Clone(), nil
}

func (s *memSessionStore) Get(key core.SessionKey) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key.String()]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return sess.Clone(), nil
}

func (s *memSessionStore) Update(sess *core.Session) error {
	s.mu.Lock()
	s.sessions[sess.Key.String()] = sess.Clone()
	s.mu.Unlock()
	return nil
}

func (s *memSessionStore) AppendEvent(key core.SessionKey, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key.String()]; ok {
		sess.AddEvent(ev)
	}
	return nil
}

func (s *memSessionStore) ApplyDelta(key core.SessionKey, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key.String()]; ok {
		sess.MergeState(delta)
	}
	return nil
}

type memMemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]core.SearchResult
}

func newMemMemoryStore() *memMemoryStore {
	return &memMemoryStore{entries: map[string][]core.SearchResult{}}
}

func (m *memMemoryStore) add(app, user, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := app + "/" + user
	m.entries[key] = append(m.entries[key], core.SearchResult{ID: content, Content: content, Score: 1.0})
}

func (m *memMemoryStore) AddSession(_ *core.Session) error { return nil }

func (m *memMemoryStore) Search(app, user, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []core.SearchResult
	for _, r := range m.entries[app+"/"+user] {
		if query == "" || strings.Contains(strings.ToLower(r.Content), strings.ToLower(query)) {
			results = append(results, r)
		}
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

func dummyRunContext() *core.RunContext {
	key := core.SessionKey{App: "citysense", User: "alice", ID: "sess-1"}

	store := newMemSessionStore()
	sess, err := store.Create(key)
	if err != nil {
		panic(err)
	}

	emit := make(chan core.Event, 10)
	resume := make(chan struct{}, 1)

	return core.NewRunContext(
		context.Background(),
		key,
		"run-1",
		core.AgentInfo{Name: "Agent", Type: "test"},
		core.Content{},
		emit,
		resume,
		sess,
		store,
		newMemMemoryStore(),
		logging.NoOpLogger{},
	)
}
