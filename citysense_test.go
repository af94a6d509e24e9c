package citysense

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/model"
	"github.com/citysense-ai/citysense/retry"
)

func TestCitySense_ChatAndHistory(t *testing.T) {
	llm := model.NewMockModel("scripted")
	llm.SetFunc(func(req model.Request) (*model.Response, error) {
		text := "stage done"
		if strings.Contains(req.Instructions, "synthesis agent") {
			text = "Full report. Are you planning to go out right now?"
		}
		resp := model.Response{Content: core.NewTextContent("assistant", text), FinishReason: "stop"}
		return &resp, nil
	})

	cs, err := New(llm, func(o *Options) {
		o.Locator = nil
		o.Retry = retry.New(retry.Policy{
			MaxAttempts:          2,
			InitialDelay:         time.Millisecond,
			BackoffBase:          2,
			RetryableStatusCodes: map[int]bool{503: true},
		})
	})
	require.NoError(t, err)

	answer, err := cs.Chat(context.Background(), "alice", "s1", "how is it outside",
		&Coordinates{Lat: 18.52, Lng: 73.85})
	require.NoError(t, err)
	assert.Contains(t, answer, "Are you planning to go out right now?")

	events, err := cs.History("alice", "s1")
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "user", events[0].Author)
}

func TestCitySense_HistoryUnknownSession(t *testing.T) {
	cs, err := New(model.NewMockModel("m"))
	require.NoError(t, err)

	_, err = cs.History("alice", "missing")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}
