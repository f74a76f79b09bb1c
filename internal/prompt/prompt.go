// Package prompt builds the message list sent to the inference backend.
package prompt

import (
	"fmt"

	"github.com/llmbot-io/llmbot/internal/history"
	"github.com/llmbot-io/llmbot/internal/llm"
)

// baseSystemMessage teaches the model the shared-channel convention:
// every user turn is prefixed with the speaker's display name.
const baseSystemMessage = "You are an AI assistant helping multiple users in a group conversation. " +
	"Messages will be formatted as 'username: message content'. " +
	"Try to differentiate between users by addressing them by name when " +
	"appropriate and maintaining awareness of who said what in the " +
	"conversation context. " +
	"Example format: 'Alice: What's the weather like?' or " +
	"'Bob: Thanks for the help!'"

// Composer renders channel history into role-tagged backend messages.
// It is a pure transformation and holds no mutable state.
type Composer struct {
	system string
}

// NewComposer creates a composer. A non-empty suffix is appended to
// the built-in system instruction, separated by a blank line.
func NewComposer(suffix string) *Composer {
	system := baseSystemMessage
	if suffix != "" {
		system += "\n\n" + suffix
	}
	return &Composer{system: system}
}

// System returns the full system instruction the composer prepends.
func (c *Composer) System() string {
	return c.system
}

// Compose builds the ordered message list for one backend call: the
// system instruction, then the prior turns oldest first, then the new
// inbound turn. Human turns become "author: content" under the user
// role so the model can tell speakers apart; assistant turns pass
// through verbatim.
func (c *Composer) Compose(turns []history.Turn, author, content string) []llm.Message {
	messages := make([]llm.Message, 0, len(turns)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: c.system})

	for _, t := range turns {
		messages = append(messages, renderTurn(t))
	}

	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("%s: %s", author, content),
	})
	return messages
}

func renderTurn(t history.Turn) llm.Message {
	if t.Assistant {
		return llm.Message{Role: llm.RoleAssistant, Content: t.Content}
	}
	return llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("%s: %s", t.Author, t.Content),
	}
}
