package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/llmbot-io/llmbot/internal/httpkit"
)

const restBaseURL = "https://discord.com/api/v10"

// errBodyLimit bounds how much of a REST error body is read for
// diagnostics.
const errBodyLimit = 4 << 10

// Rest is a minimal Discord REST client covering the two calls the
// relay makes: posting messages and triggering typing indicators.
type Rest struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRest creates a Discord REST client authenticated with a bot token.
func NewRest(token string, logger *slog.Logger) *Rest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rest{
		baseURL:    restBaseURL,
		token:      token,
		httpClient: httpkit.NewClient(),
		logger:     logger,
	}
}

// SendMessage posts a text message to a channel.
func (r *Rest) SendMessage(ctx context.Context, channelID, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", r.baseURL, channelID)
	if err := r.post(ctx, url, body); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// TriggerTyping shows the typing indicator in a channel. Discord keeps
// it visible for roughly ten seconds or until the bot posts.
func (r *Rest) TriggerTyping(ctx context.Context, channelID string) error {
	url := fmt.Sprintf("%s/channels/%s/typing", r.baseURL, channelID)
	if err := r.post(ctx, url, nil); err != nil {
		return fmt.Errorf("trigger typing: %w", err)
	}
	return nil
}

func (r *Rest) post(ctx context.Context, url string, body []byte) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+r.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(resp.Body, errBodyLimit)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := httpkit.ReadErrorBody(resp.Body, errBodyLimit)
		return fmt.Errorf("discord API status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
