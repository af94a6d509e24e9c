package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/citysense-ai/citysense/core"
)

// entry is one indexed snippet of past conversation.
type entry struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// InMemoryStore is a process-local MemoryStore. Committing a session turns
// its conversation events into indexed entries scoped by (app, user); Search
// performs a case-insensitive substring scan over them.
//
// Re-committing the same session replaces its previous entries, so periodic
// background commits stay idempotent. Matching is deliberately naive; swap in
// a semantic index for production retrieval quality.
type InMemoryStore struct {
	mu sync.RWMutex
	// app/user -> session id -> entries from that session
	entries map[string]map[string][]entry
}

// NewInMemoryStore creates an empty memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]map[string][]entry)}
}

func scopeKey(app, user string) string { return app + "/" + user }

// AddSession indexes the session's conversation history. Events without
// conversational content are skipped. Safe to call repeatedly as the session
// grows.
func (m *InMemoryStore) AddSession(sess *core.Session) error {
	if sess == nil {
		return fmt.Errorf("cannot add nil session to memory")
	}

	var entries []entry
	for i, ev := range sess.GetConversationHistory() {
		text := ""
		if ev.Content != nil {
			text = ev.Content.Text()
		}
		if text == "" {
			continue
		}
		entries = append(entries, entry{
			ID:      fmt.Sprintf("%s#%d", sess.Key.ID, i),
			Content: text,
			Metadata: map[string]any{
				"session_id": sess.Key.ID,
				"author":     ev.Author,
				"timestamp":  ev.Timestamp,
			},
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	scope := scopeKey(sess.Key.App, sess.Key.User)
	if _, ok := m.entries[scope]; !ok {
		m.entries[scope] = make(map[string][]entry)
	}
	m.entries[scope][sess.Key.ID] = entries

	return nil
}

// Search scans the user's indexed conversations for the query. An empty
// query matches everything. Results carry a constant score of 1.0.
func (m *InMemoryStore) Search(app, user, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions, ok := m.entries[scopeKey(app, user)]
	if !ok {
		return []core.SearchResult{}, nil
	}

	needle := strings.ToLower(query)
	results := []core.SearchResult{}
	for _, entries := range sessions {
		for _, e := range entries {
			if limit > 0 && len(results) >= limit {
				return results, nil
			}
			if needle == "" || strings.Contains(strings.ToLower(e.Content), needle) {
				md := make(map[string]any, len(e.Metadata))
				for k, v := range e.Metadata {
					md[k] = v
				}
				results = append(results, core.SearchResult{ID: e.ID, Content: e.Content, Score: 1.0, Metadata: md})
			}
		}
	}
	return results, nil
}
