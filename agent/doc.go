// Package agent contains the concrete agent implementations that make up a
// research pipeline: model-backed agents that talk to an LLM and dispatch
// tools, plus sequential and parallel coordinators that compose them into
// multi-stage workflows.
package agent
