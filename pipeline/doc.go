// Package pipeline coordinates a full research turn: it loads or creates the
// session, persists client GPS coordinates, drives the agent tree, applies
// every emitted event to the session store, and hands the synthesized report
// back to the caller.
package pipeline
