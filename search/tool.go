package search

import (
	"fmt"
	"strings"

	"github.com/citysense-ai/citysense/core"
	"github.com/citysense-ai/citysense/tool"
)

// NewSearchTool exposes a Provider to agents as the "web_search" tool.
// Results are flattened into a text block with titles, snippets and URLs.
// A nil provider degrades to a not-configured message instead of failing.
func NewSearchTool(provider Provider) *tool.FunctionTool {
	return tool.NewFunctionTool(
		"web_search",
		"Search the web for up-to-date information such as news, advisories and live data",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			query, _ := args["query"].(string)

			if provider == nil {
				return "Search is not configured.", nil
			}

			results, err := provider.Search(toolCtx.Context(), query)
			if err != nil {
				return nil, fmt.Errorf("web search failed: %w", err)
			}
			if len(results) == 0 {
				return "No results found.", nil
			}

			var sb strings.Builder
			for i, r := range results {
				fmt.Fprintf(&sb, "%d. %s\n%s\n%s\n\n", i+1, r.Title, r.Snippet, r.URL)
			}
			return strings.TrimSpace(sb.String()), nil
		},
	)
}
