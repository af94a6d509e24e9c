// Package model defines the provider-neutral interface the agents use for
// text generation with function/tool calling, plus a deterministic MockModel
// for tests. Concrete providers live in the openai and anthropic subpackages.
package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/citysense-ai/citysense/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by an agent turn.
type Request struct {
	Instructions string           `json:"instructions"` // System instructions for the model
	Contents     []core.Content   `json:"contents"`     // Conversation converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the complete output of one model invocation. Its content may
// contain text parts, function call parts, or both.
type Response struct {
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents to drive generation.
// Generate is a single round trip; the agent loop re-invokes it after tool
// execution, which keeps it directly wrappable by the retry executor.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model for tests. Responses can be
// keyed by the last user text, scripted as a FIFO queue, or computed by a
// function; the first matching source wins.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]Response
	script    []Response
	fn        func(req Request) (*Response, error)
	requests  []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsTools: true},
		responses: make(map[string]Response),
	}
}

// AddResponse registers a canned text completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = Response{
		Content:      core.NewTextContent("assistant", response),
		FinishReason: "stop",
	}
}

// Enqueue appends scripted responses returned in order regardless of input.
func (m *MockModel) Enqueue(resps ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, resps...)
}

// SetFunc installs a response function consulted when no script or canned
// response matches.
func (m *MockModel) SetFunc(fn func(req Request) (*Response, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
}

// Requests returns a copy of all requests seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.script) > 0 {
		resp := m.script[0]
		m.script = m.script[1:]
		return &resp, nil
	}

	var lastUser string
	for _, c := range req.Contents {
		if c.Role == "user" {
			lastUser = c.Text()
		}
	}
	if resp, ok := m.responses[lastUser]; ok {
		return &resp, nil
	}

	if m.fn != nil {
		return m.fn(req)
	}

	resp := Response{
		Content:      core.NewTextContent("assistant", fmt.Sprintf("Mock response to: %s", lastUser)),
		FinishReason: "stop",
	}
	return &resp, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
