package agent

import (
	"errors"
	"testing"

	"github.com/citysense-ai/citysense/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAgent emits a single event carrying an optional state delta, then
// either succeeds or fails. It records the branch it observed at run time.
type stubAgent struct {
	BaseAgent
	delta      map[string]any
	reply      string
	fail       error
	seenBranch string
	readKey    string
	readValue  any
}

func newStubAgent(name string) *stubAgent {
	return &stubAgent{BaseAgent: NewBaseAgent(name)}
}

func (a *stubAgent) Run(runCtx *core.RunContext) error {
	a.seenBranch = runCtx.Branch
	if a.readKey != "" {
		a.readValue, _ = runCtx.GetState(a.readKey)
	}
	if a.fail != nil {
		return a.fail
	}

	ev := core.NewMessageEvent(runCtx.RunID, a.Name(), a.reply)
	if a.delta != nil {
		ev.Actions.StateDelta = a.delta
	}
	if runCtx.Branch != "" {
		branch := runCtx.Branch
		ev.Branch = &branch
	}
	if err := runCtx.EmitEvent(ev); err != nil {
		return err
	}
	return runCtx.WaitForResume()
}

func TestSequentialAgent_RunsChildrenInOrderWithStateFlow(t *testing.T) {
	first := newStubAgent("Locator")
	first.delta = map[string]any{"precise_location": "Pune"}
	first.reply = "located"

	second := newStubAgent("Researcher")
	second.readKey = "precise_location"
	second.reply = "researched"

	seq := NewSequentialAgent("Pipeline", first, second)

	h := newHarness(t)
	require.NoError(t, h.run(t, seq))

	events := h.collectedEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "Locator", events[0].Author)
	assert.Equal(t, "Researcher", events[1].Author)

	// The second stage observed the first stage's output.
	assert.Equal(t, "Pune", second.readValue)
}

func TestSequentialAgent_StopsOnFirstError(t *testing.T) {
	first := newStubAgent("Fails")
	first.fail = errors.New("boom")
	second := newStubAgent("NeverRuns")
	second.reply = "should not happen"

	seq := NewSequentialAgent("Pipeline", first, second)

	h := newHarness(t)
	err := h.run(t, seq)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Fails")
	assert.Empty(t, h.collectedEvents())
}
