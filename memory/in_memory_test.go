package memory

import (
	"testing"

	"github.com/citysense-ai/citysense/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.MemoryStore = (*InMemoryStore)(nil)

func sessionWithMessages(key core.SessionKey, messages ...string) *core.Session {
	sess := core.NewSession(key)
	for i, msg := range messages {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		ev := core.NewEvent("run-1", role)
		ev.Content = &core.Content{Role: role, Parts: []core.Part{core.TextPart{Text: msg}}}
		sess.AddEvent(ev)
	}
	return sess
}

func TestInMemoryStore_AddAndSearch(t *testing.T) {
	store := NewInMemoryStore()
	key := core.SessionKey{App: "citysense", User: "alice", ID: "s1"}

	sess := sessionWithMessages(key,
		"what is the air quality in Pune",
		"The AQI in Pune is 92, moderate.",
	)
	require.NoError(t, store.AddSession(sess))

	results, err := store.Search("citysense", "alice", "pune", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, "s1", results[0].Metadata["session_id"])
}

func TestInMemoryStore_ScopedByAppAndUser(t *testing.T) {
	store := NewInMemoryStore()

	alice := core.SessionKey{App: "citysense", User: "alice", ID: "s1"}
	require.NoError(t, store.AddSession(sessionWithMessages(alice, "traffic in Delhi")))

	// Same query under another user finds nothing.
	results, err := store.Search("citysense", "bob", "Delhi", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Same user under another app finds nothing.
	results, err = store.Search("otherapp", "alice", "Delhi", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInMemoryStore_RecommitReplacesSessionEntries(t *testing.T) {
	store := NewInMemoryStore()
	key := core.SessionKey{App: "citysense", User: "alice", ID: "s1"}

	require.NoError(t, store.AddSession(sessionWithMessages(key, "first message")))
	require.NoError(t, store.AddSession(sessionWithMessages(key, "first message", "second message")))

	results, err := store.Search("citysense", "alice", "message", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestInMemoryStore_SearchLimit(t *testing.T) {
	store := NewInMemoryStore()
	key := core.SessionKey{App: "citysense", User: "alice", ID: "s1"}
	require.NoError(t, store.AddSession(sessionWithMessages(key, "aqi one", "aqi two", "aqi three", "aqi four")))

	results, err := store.Search("citysense", "alice", "aqi", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestInMemoryStore_EmptyQueryMatchesAll(t *testing.T) {
	store := NewInMemoryStore()
	key := core.SessionKey{App: "citysense", User: "alice", ID: "s1"}
	require.NoError(t, store.AddSession(sessionWithMessages(key, "hello", "world")))

	results, err := store.Search("citysense", "alice", "", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestInMemoryStore_NilSessionRejected(t *testing.T) {
	store := NewInMemoryStore()
	assert.Error(t, store.AddSession(nil))
}
