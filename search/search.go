// Package search provides web search for the research agents. The Tavily
// client is the production provider; tests substitute the Provider interface.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/citysense-ai/citysense/retry"
)

// Result is a single web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Provider executes a web search query.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// DefaultTavilyEndpoint is the Tavily search API URL.
const DefaultTavilyEndpoint = "https://api.tavily.com/search"

// maxResults caps how many hits are returned per query; more just burns
// model context without improving answers.
const maxResults = 5

// TavilyOptions configures the Tavily client.
type TavilyOptions struct {
	// Depth controls Tavily's depth parameter ("basic" or "advanced").
	Depth string
	// Endpoint overrides the API URL (tests).
	Endpoint string
	// HTTPClient overrides the default 10 second timeout client.
	HTTPClient *http.Client
	// Retry wraps each request; rate limits and server errors are retried
	// under its policy. Defaults to the standard policy when nil.
	Retry *retry.Executor
}

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey   string
	depth    string
	endpoint string
	client   *http.Client
	retry    *retry.Executor
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey string, optFns ...func(o *TavilyOptions)) *Tavily {
	opts := TavilyOptions{
		Depth:    "basic",
		Endpoint: DefaultTavilyEndpoint,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Retry == nil {
		opts.Retry = retry.New(retry.DefaultPolicy())
	}

	return &Tavily{
		apiKey:   apiKey,
		depth:    opts.Depth,
		endpoint: opts.Endpoint,
		client:   opts.HTTPClient,
		retry:    opts.Retry,
	}
}

// Search posts a query to Tavily. Rate limits (429) and transient server
// errors are retried under the configured policy.
func (t *Tavily) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(map[string]any{
		"query":   query,
		"api_key": t.apiKey,
		"depth":   t.depth,
	})
	if err != nil {
		return nil, err
	}

	return retry.Do(ctx, t.retry, "search.tavily", func(ctx context.Context) ([]Result, error) {
		return t.doSearch(ctx, payload)
	})
}

func (t *Tavily) doSearch(ctx context.Context, payload []byte) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, retry.NewStatusError(resp.StatusCode, fmt.Sprintf("tavily http %d", resp.StatusCode))
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
