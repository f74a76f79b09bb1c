package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/llmbot-io/llmbot/internal/httpkit"
)

// defaultSearchLimit caps websearch results when the model does not
// ask for a specific count.
const defaultSearchLimit = 10

// searxResponse is the subset of the SearXNG JSON API we consume.
type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (r *Registry) handleWebsearch(ctx context.Context, args map[string]any) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}

	limit := defaultSearchLimit
	if raw, ok := args["limit"]; ok {
		// Tool calls sometimes pass integers as strings.
		n, err := numberArg(map[string]any{"limit": raw}, "limit")
		if err == nil && int(n) > 0 {
			limit = int(n)
		}
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.searxngURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf("Error performing web search: %v", err), nil
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Error performing web search: status %d", resp.StatusCode), nil
	}

	var parsed searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Sprintf("Error performing web search: %v", err), nil
	}

	if len(parsed.Results) == 0 {
		return fmt.Sprintf("No search results found for query: %s", query), nil
	}
	if len(parsed.Results) > limit {
		parsed.Results = parsed.Results[:limit]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n\n", query)
	for i, item := range parsed.Results {
		snippet := item.Content
		if snippet == "" {
			snippet = "No snippet available"
		}
		fmt.Fprintf(&sb, "%d. %s\n", i+1, item.Title)
		fmt.Fprintf(&sb, "   URL: %s\n", item.URL)
		fmt.Fprintf(&sb, "   %s\n\n", snippet)
	}
	return strings.TrimSpace(sb.String()), nil
}
