package tool

import (
	"fmt"
	"strings"

	"github.com/citysense-ai/citysense/core"
)

// AgentTool exposes a complete agent as a callable tool, letting a parent
// agent delegate a sub-task ("request") to a nested specialist and receive
// its final text back as the tool result.
//
// The wrapped agent runs inside a child execution context with its own event
// channel. State deltas emitted by the nested agent are forwarded into the
// caller's ToolContext so output keys written by the child become visible to
// later pipeline stages.
type AgentTool struct {
	agent core.Agent
}

// NewAgentTool wraps an agent so it can be registered as a tool on another agent.
func NewAgentTool(agent core.Agent) *AgentTool {
	return &AgentTool{agent: agent}
}

// Name returns the wrapped agent's name normalized to snake_case.
func (t *AgentTool) Name() string {
	return strings.ToLower(strings.ReplaceAll(t.agent.Name(), " ", "_"))
}

// Description returns the wrapped agent's description.
func (t *AgentTool) Description() string { return t.agent.Description() }

// Parameters describes the single "request" argument passed to the nested agent.
func (t *AgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{
				"type":        "string",
				"description": "The task or question to hand to the " + t.agent.Name() + " agent",
			},
		},
		"required": []string{"request"},
	}
}

// Call runs the nested agent to completion and returns its final response text.
func (t *AgentTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	request, _ := args["request"].(string)
	if request == "" {
		return nil, NewToolError(t.Name(), "request must be a non-empty string", "VALIDATION_ERROR")
	}

	parent := toolCtx.InternalRunContext()

	emit := make(chan core.Event)
	resume := make(chan struct{})

	branch := t.agent.Name()
	if parent.Branch != "" {
		branch = parent.Branch + "." + t.agent.Name()
	}

	childCtx := parent.NewChildContext(emit, resume, branch)
	childCtx.UserContent = core.NewTextContent("user", request)

	runErr := make(chan error, 1)
	go func() {
		defer close(emit)
		runErr <- t.agent.Run(childCtx)
	}()

	var finalText string
	for ev := range emit {
		for k, v := range ev.Actions.StateDelta {
			toolCtx.SetState(k, v)
		}
		if ev.Author == t.agent.Name() && ev.IsFinalResponse() && ev.Content != nil {
			if txt := ev.Content.Text(); txt != "" {
				finalText = txt
			}
		}

		select {
		case resume <- struct{}{}:
		case <-parent.Done():
			return nil, parent.Err()
		}
	}

	if err := <-runErr; err != nil {
		return nil, NewToolError(t.Name(), fmt.Sprintf("nested agent failed: %v", err), "EXECUTION_ERROR")
	}

	if finalText == "" {
		finalText = core.NoResponseText
	}

	return finalText, nil
}
