// Package tools defines the tools the model may call during a query.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/llmbot-io/llmbot/internal/httpkit"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds available tools.
type Registry struct {
	tools      map[string]*Tool
	searxngURL string
	metarURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRegistry creates a tool registry. searxngURL points at a SearXNG
// search endpoint for the websearch tool.
func NewRegistry(searxngURL string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:      make(map[string]*Tool),
		searxngURL: searxngURL,
		metarURL:   metarBaseURL,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(30 * time.Second)),
		logger:     logger,
	}
	r.registerBuiltins()
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Specs returns the tool schemas in OpenAI function-calling format,
// sorted by name for stable request payloads.
func (r *Registry) Specs() []map[string]any {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		specs = append(specs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return specs
}

// Execute runs a named tool against JSON-encoded arguments and returns
// the result text. Failures of any kind — unknown tool, bad arguments,
// handler errors — come back as result text the model can read, never
// as an error that stops the query.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) string {
	t, ok := r.tools[name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}

	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
		}
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		r.logger.Debug("tool execution failed", "tool", name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

func numberParams(aDesc, bDesc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number", "description": aDesc},
			"b": map[string]any{"type": "number", "description": bDesc},
		},
		"required": []string{"a", "b"},
	}
}

func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name:        "add_numbers",
		Description: "Add two numbers together",
		Parameters:  numberParams("First number to add", "Second number to add"),
		Handler:     arithmeticHandler(func(a, b float64) (float64, error) { return a + b, nil }),
	})

	r.Register(&Tool{
		Name:        "subtract_numbers",
		Description: "Subtract two numbers",
		Parameters:  numberParams("First number (minuend)", "Second number (subtrahend)"),
		Handler:     arithmeticHandler(func(a, b float64) (float64, error) { return a - b, nil }),
	})

	r.Register(&Tool{
		Name:        "multiply_numbers",
		Description: "Multiply two numbers",
		Parameters:  numberParams("First number", "Second number"),
		Handler:     arithmeticHandler(func(a, b float64) (float64, error) { return a * b, nil }),
	})

	r.Register(&Tool{
		Name:        "divide_numbers",
		Description: "Divide two numbers",
		Parameters:  numberParams("First number (dividend)", "Second number (divisor)"),
		Handler: arithmeticHandler(func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, fmt.Errorf("division by zero is not allowed")
			}
			return a / b, nil
		}),
	})

	r.Register(&Tool{
		Name:        "get_current_time",
		Description: "Get the current date and time",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return time.Now().UTC().Format("2006-01-02 15:04:05 UTC"), nil
		},
	})

	r.Register(&Tool{
		Name:        "count_letters",
		Description: "Count occurrences of a specific letter in a text string",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":   map[string]any{"type": "string", "description": "The text to search in"},
				"letter": map[string]any{"type": "string", "description": "The letter to count (single character)"},
			},
			"required": []string{"text", "letter"},
		},
		Handler: handleCountLetters,
	})

	r.Register(&Tool{
		Name:        "get_metar",
		Description: "Get METAR weather data for an airport by ICAO code",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"icao_code": map[string]any{
					"type":        "string",
					"description": "3 or 4-letter airport code (e.g., GTU, KJFK)",
				},
			},
			"required": []string{"icao_code"},
		},
		Handler: r.handleMetar,
	})

	r.Register(&Tool{
		Name:        "websearch",
		Description: "Search the web using a local SearXNG instance",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query string"},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (default 10)",
				},
			},
			"required": []string{"query"},
		},
		Handler: r.handleWebsearch,
	})
}
