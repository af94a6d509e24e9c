// Package session provides SessionStore implementations: a volatile
// in-memory store for tests and demos, and a SQLite-backed store for
// deployments that need history to survive restarts.
package session
