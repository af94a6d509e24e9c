package core

// SearchResult represents a recalled memory item with a relevance score and
// arbitrary metadata (source session id, author, timestamp).
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// MemoryStore is the long-term memory index. AddSession commits a session's
// conversation into the index so later turns (possibly in other sessions of
// the same app/user) can recall it. The write path is best-effort by
// contract: callers fire it in the background and only log failures, so
// implementations should be safe to retry.
type MemoryStore interface {
	AddSession(sess *Session) error
	Search(app, user, query string, limit int) ([]SearchResult, error)
}
