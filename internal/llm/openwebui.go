package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/llmbot-io/llmbot/internal/httpkit"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// errorBodyLimit caps how much of an error response body is read into
// error messages.
const errorBodyLimit = 2048

// OpenWebUIClient talks to an OpenAI-compatible chat completions
// endpoint (OpenWebUI, Ollama's OpenAI facade, or the real thing).
type OpenWebUIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenWebUIClient creates a backend client for the given base URL.
// Per-request deadlines come from the caller's context, so the
// underlying http.Client has no timeout of its own.
func NewOpenWebUIClient(baseURL, apiKey string, logger *slog.Logger) *OpenWebUIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenWebUIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
		logger:     logger,
	}
}

// chatRequest is the OpenAI-compatible chat completions request body.
type chatRequest struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Stream   bool             `json:"stream"`
}

// chatResponse is the OpenAI-compatible chat completions response body.
type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request to the backend.
func (c *OpenWebUIClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := chatRequest{
		Model:    model,
		Messages: messages,
		Tools:    tools,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "chat request", "payload", string(payload))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("chat %s: %w", model, ErrTimeout)
		}
		return nil, &BackendError{Err: err}
	}
	defer httpkit.DrainAndClose(resp.Body, errorBodyLimit)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, errorBodyLimit)
		return nil, &BackendError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", body),
		}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("chat %s: %w", model, ErrTimeout)
		}
		return nil, &BackendError{Err: fmt.Errorf("decode response: %w", err)}
	}

	if len(parsed.Choices) == 0 {
		return nil, &BackendError{Err: errors.New("response contained no choices")}
	}

	choice := parsed.Choices[0]
	c.logger.Log(ctx, LevelTrace, "chat response",
		"finish_reason", choice.FinishReason,
		"content_len", len(choice.Message.Content),
		"tool_calls", len(choice.Message.ToolCalls),
	)

	return &ChatResponse{
		Model:        model,
		Message:      choice.Message,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// isTimeout reports whether err stems from a context deadline or a
// network-level timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
