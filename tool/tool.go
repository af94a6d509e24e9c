// Package tool implements the function calling subsystem that lets agents
// invoke structured capabilities (lookups, searches, nested agents) with
// schema validated arguments and consistent error handling.
package tool

import (
	"fmt"

	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/internal/util"
)

// Tool defines the interface for extending agent capabilities beyond text
// generation.
//
// Tools are registered with agents to enable function calling. Every tool
// receives a ToolContext giving access to session state, memory recall and
// accumulated event actions, so implementations can participate in the
// session lifecycle without touching the stores directly.
//
// Implementations must be safe for concurrent use; a single tool instance
// may serve multiple sessions at once.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description returns a human-readable description provided to the LLM
	// so it understands when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]interface{}

	// Call executes the tool with already-parsed arguments. Arguments are
	// validated against the tool's schema before execution.
	Call(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
