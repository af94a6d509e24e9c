// Package core defines the shared contracts of the CitySense orchestration
// runtime: the Agent interface, events and content parts, sessions and their
// stores, the long-term memory store, and the per-run execution contexts
// handed to agents and tools.
package core
