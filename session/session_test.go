package session

import (
	"path/filepath"
	"testing"

	"github.com/citysense-ai/citysense/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ core.SessionStore = (*InMemoryStore)(nil)
	_ core.SessionStore = (*GormStore)(nil)
)

func testKey(id string) core.SessionKey {
	return core.SessionKey{App: "citysense", User: "alice", ID: id}
}

// storeFactories lets every contract test run against both implementations.
func storeFactories(t *testing.T) map[string]func(t *testing.T) core.SessionStore {
	return map[string]func(t *testing.T) core.SessionStore{
		"in_memory": func(t *testing.T) core.SessionStore {
			return NewInMemoryStore()
		},
		"sqlite": func(t *testing.T) core.SessionStore {
			store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
			require.NoError(t, err)
			return store
		},
	}
}

func TestSessionStore_GetUnknownReturnsNotFound(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			_, err := store.Get(testKey("missing"))
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
		})
	}
}

func TestSessionStore_CreateThenGet(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			key := testKey("s1")

			created, err := store.Create(key)
			require.NoError(t, err)
			assert.Equal(t, key, created.Key)

			got, err := store.Get(key)
			require.NoError(t, err)
			assert.Equal(t, key, got.Key)
			assert.Empty(t, got.GetEvents())
		})
	}
}

func TestSessionStore_KeyTripleIsolation(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			keyA := core.SessionKey{App: "citysense", User: "alice", ID: "shared"}
			keyB := core.SessionKey{App: "citysense", User: "bob", ID: "shared"}

			_, err := store.Create(keyA)
			require.NoError(t, err)
			require.NoError(t, store.ApplyDelta(keyA, map[string]any{"who": "alice"}))

			// Same session id under a different user is a different session.
			_, err = store.Get(keyB)
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
		})
	}
}

func TestSessionStore_AppendEventAndDeltaRoundTrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			key := testKey("s2")

			_, err := store.Create(key)
			require.NoError(t, err)

			userEv := core.NewUserMessageEvent("run-1", "how is the air today")
			require.NoError(t, store.AppendEvent(key, userEv))

			fcEv := core.NewEvent("run-1", "AqiResearcher")
			fcEv.Content = &core.Content{Role: "assistant", Parts: []core.Part{
				core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "fc1", Name: "web_search", Arguments: `{"query":"aqi"}`}},
			}}
			require.NoError(t, store.AppendEvent(key, fcEv))

			require.NoError(t, store.ApplyDelta(key, map[string]any{
				"aqi_research_output": "AQI 87",
			}))

			got, err := store.Get(key)
			require.NoError(t, err)

			events := got.GetEvents()
			require.Len(t, events, 2)
			assert.Equal(t, "user", events[0].Content.Role)
			assert.Equal(t, "how is the air today", events[0].Content.Text())

			calls := events[1].GetFunctionCalls()
			require.Len(t, calls, 1)
			assert.Equal(t, "web_search", calls[0].Name)
			assert.Equal(t, `{"query":"aqi"}`, calls[0].Arguments)

			v, ok := got.GetState("aqi_research_output")
			require.True(t, ok)
			assert.Equal(t, "AQI 87", v)
		})
	}
}

func TestSessionStore_AppendToUnknownSessionFails(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			err := store.AppendEvent(testKey("missing"), core.NewUserMessageEvent("run-1", "hi"))
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
		})
	}
}

func TestSessionStore_UpdatePersistsState(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			key := testKey("s3")

			sess, err := store.Create(key)
			require.NoError(t, err)

			sess.SetState("precise_location", map[string]any{"lat": 18.52, "lng": 73.85})
			require.NoError(t, store.Update(sess))

			got, err := store.Get(key)
			require.NoError(t, err)
			v, ok := got.GetState("precise_location")
			require.True(t, ok)
			loc, ok := v.(map[string]any)
			require.True(t, ok)
			assert.InDelta(t, 18.52, loc["lat"].(float64), 1e-9)
		})
	}
}

func TestGormStore_RecreateClearsHistory(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	key := testKey("s4")

	_, err = store.Create(key)
	require.NoError(t, err)
	require.NoError(t, store.AppendEvent(key, core.NewUserMessageEvent("run-1", "old message")))

	_, err = store.Create(key)
	require.NoError(t, err)

	got, err := store.Get(key)
	require.NoError(t, err)
	assert.Empty(t, got.GetEvents())
}

func TestGormStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	key := testKey("s5")
	_, err = store.Create(key)
	require.NoError(t, err)
	require.NoError(t, store.AppendEvent(key, core.NewUserMessageEvent("run-1", "remember me")))

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(key)
	require.NoError(t, err)
	require.Len(t, got.GetEvents(), 1)
	assert.Equal(t, "remember me", got.GetEvents()[0].Content.Text())
}
