package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/citysense-ai/citysense/agent"
	"github.com/citysense-ai/citysense/conditions"
	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/memory"
	"github.com/citysense-ai/citysense/model"
	"github.com/citysense-ai/citysense/retry"
	"github.com/citysense-ai/citysense/search"
	"github.com/citysense-ai/citysense/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conditionsModel() *model.MockModel {
	m := model.NewMockModel("scripted")
	m.SetFunc(func(req model.Request) (*model.Response, error) {
		var text string
		switch {
		case strings.Contains(req.Instructions, "determine the user's location"):
			text = "city=Pune; region=Maharashtra; country=IN; lat=18.52; lng=73.85"
		case strings.Contains(req.Instructions, "Air Quality Researcher"):
			text = "AQI 92, moderate."
		case strings.Contains(req.Instructions, "Traffic Analyst"):
			text = "Congestion on the ring road."
		default:
			text = "Here is your local conditions report. Are you planning to go out right now?"
		}
		resp := model.Response{Content: core.NewTextContent("assistant", text), FinishReason: "stop"}
		return &resp, nil
	})
	return m
}

type searchStub struct{}

func (searchStub) Search(context.Context, string) ([]search.Result, error) {
	return nil, nil
}

func newConditionsCoordinator(t *testing.T) (*Coordinator, core.SessionStore, core.MemoryStore) {
	t.Helper()

	tree, err := conditions.BuildPipeline(conditions.Config{
		Model:  conditionsModel(),
		Search: searchStub{},
		Retry: retry.New(retry.Policy{
			MaxAttempts:          2,
			InitialDelay:         time.Millisecond,
			BackoffBase:          2,
			RetryableStatusCodes: map[int]bool{503: true},
		}),
	})
	require.NoError(t, err)

	sessions := session.NewInMemoryStore()
	memories := memory.NewInMemoryStore()
	coord := NewCoordinator(tree, func(o *Options) {
		o.SessionStore = sessions
		o.MemoryStore = memories
	})
	return coord, sessions, memories
}

func TestCoordinator_RunTurnProducesReport(t *testing.T) {
	coord, sessions, _ := newConditionsCoordinator(t)

	answer, err := coord.RunTurn(context.Background(), "alice", "s1", "how is it outside", nil)
	require.NoError(t, err)
	assert.Contains(t, answer, "Are you planning to go out right now?")

	sess, err := sessions.Get(core.SessionKey{App: "citysense", User: "alice", ID: "s1"})
	require.NoError(t, err)

	for _, k := range []string{
		conditions.KeyLocationResearch,
		conditions.KeyAqiResearch,
		conditions.KeyTrafficResearch,
		conditions.KeyConditionsSummary,
	} {
		_, ok := sess.GetState(k)
		assert.True(t, ok, "missing state key %s", k)
	}

	events := sess.GetEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, "user", events[0].Author)
	assert.Equal(t, "how is it outside", events[0].Content.Text())
}

func TestCoordinator_PersistsCoordinatesBeforeRun(t *testing.T) {
	coord, sessions, _ := newConditionsCoordinator(t)

	_, err := coord.RunTurn(context.Background(), "alice", "s1", "conditions please",
		&Coordinates{Lat: 18.52, Lng: 73.85})
	require.NoError(t, err)

	sess, err := sessions.Get(core.SessionKey{App: "citysense", User: "alice", ID: "s1"})
	require.NoError(t, err)

	v, ok := sess.GetState(conditions.StateKeyPreciseLocation)
	require.True(t, ok)
	loc := v.(map[string]any)
	assert.Equal(t, 18.52, loc["lat"])
	assert.Equal(t, 73.85, loc["lng"])
}

func TestCoordinator_SecondTurnExtendsSameSession(t *testing.T) {
	coord, sessions, _ := newConditionsCoordinator(t)

	_, err := coord.RunTurn(context.Background(), "alice", "s1", "first question", nil)
	require.NoError(t, err)

	sess, err := sessions.Get(core.SessionKey{App: "citysense", User: "alice", ID: "s1"})
	require.NoError(t, err)
	firstCount := len(sess.GetEvents())

	_, err = coord.RunTurn(context.Background(), "alice", "s1", "second question", nil)
	require.NoError(t, err)

	sess, err = sessions.Get(core.SessionKey{App: "citysense", User: "alice", ID: "s1"})
	require.NoError(t, err)
	assert.Greater(t, len(sess.GetEvents()), firstCount)

	var userTexts []string
	for _, ev := range sess.GetConversationHistory() {
		if ev.Author == "user" {
			userTexts = append(userTexts, ev.Content.Text())
		}
	}
	assert.Equal(t, []string{"first question", "second question"}, userTexts)
}

func TestCoordinator_CommitsSessionToMemory(t *testing.T) {
	coord, _, memories := newConditionsCoordinator(t)

	_, err := coord.RunTurn(context.Background(), "alice", "s1", "how is the air", nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		results, err := memories.Search("citysense", "alice", "air", 5)
		return err == nil && len(results) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestCoordinator_SilentRunReturnsSentinel(t *testing.T) {
	coord := NewCoordinator(&silentAgent{BaseAgent: agent.NewBaseAgent("Quiet")})

	answer, err := coord.RunTurn(context.Background(), "alice", "s1", "anyone there", nil)
	require.NoError(t, err)
	assert.Equal(t, core.NoResponseText, answer)
}

func TestCoordinator_RunFailureIsSurfaced(t *testing.T) {
	coord := NewCoordinator(&failingAgent{BaseAgent: agent.NewBaseAgent("Broken")})

	_, err := coord.RunTurn(context.Background(), "alice", "s1", "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline execution failed")
}

func TestCoordinator_HistoryForUnknownSession(t *testing.T) {
	coord, _, _ := newConditionsCoordinator(t)

	_, err := coord.History("alice", "never-created")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestCoordinator_HistoryAfterTurn(t *testing.T) {
	coord, _, _ := newConditionsCoordinator(t)

	_, err := coord.RunTurn(context.Background(), "alice", "s1", "report please", nil)
	require.NoError(t, err)

	events, err := coord.History("alice", "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, events)
	assert.Equal(t, "user", events[0].Author)
}

type silentAgent struct {
	agent.BaseAgent
}

func (a *silentAgent) Run(_ *core.RunContext) error { return nil }

type failingAgent struct {
	agent.BaseAgent
}

func (a *failingAgent) Run(_ *core.RunContext) error { return errors.New("model exploded") }
