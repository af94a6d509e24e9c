package tool

import (
	"fmt"
	"strings"

	"github.com/citysense-ai/citysense/core"
)

const defaultRecallLimit = 5

// NewMemoryRecallTool returns a tool that searches the long-term memory store
// for content from past sessions of the same app and user. Results are
// returned as a plain text block the model can weave into its answer.
func NewMemoryRecallTool() *FunctionTool {
	return NewFunctionTool(
		"recall_memory",
		"Search past conversations of this user for relevant information",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Free text query, e.g. a place name or topic discussed before",
				},
			},
			"required": []string{"query"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			query, _ := args["query"].(string)

			results, err := toolCtx.SearchMemory(query, defaultRecallLimit)
			if err != nil {
				return nil, fmt.Errorf("memory search failed: %w", err)
			}
			if len(results) == 0 {
				return "No relevant past conversations found.", nil
			}

			var sb strings.Builder
			sb.WriteString("Relevant past conversations:\n")
			for _, r := range results {
				sb.WriteString("- ")
				sb.WriteString(r.Content)
				sb.WriteString("\n")
			}
			return sb.String(), nil
		},
	)
}
