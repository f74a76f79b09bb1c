package prompt

import (
	"strings"
	"testing"

	"github.com/llmbot-io/llmbot/internal/history"
	"github.com/llmbot-io/llmbot/internal/llm"
)

func TestCompose_EmptyHistory(t *testing.T) {
	c := NewComposer("")
	got := c.Compose(nil, "alice", "hello")

	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %q, want system", got[0].Role)
	}
	if !strings.Contains(got[0].Content, "username: message content") {
		t.Error("system message does not explain the author prefix convention")
	}
	if got[1].Role != llm.RoleUser || got[1].Content != "alice: hello" {
		t.Errorf("new turn = %+v, want user/'alice: hello'", got[1])
	}
}

func TestCompose_RendersRolesAndAuthors(t *testing.T) {
	c := NewComposer("")
	turns := []history.Turn{
		{Author: "alice", Content: "what is 2+2?"},
		{Assistant: true, Content: "4"},
		{Author: "bob", Content: "thanks"},
	}

	got := c.Compose(turns, "alice", "and 3+3?")
	if len(got) != 5 {
		t.Fatalf("got %d messages, want 5", len(got))
	}

	want := []llm.Message{
		{Role: llm.RoleUser, Content: "alice: what is 2+2?"},
		{Role: llm.RoleAssistant, Content: "4"},
		{Role: llm.RoleUser, Content: "bob: thanks"},
		{Role: llm.RoleUser, Content: "alice: and 3+3?"},
	}
	for i, w := range want {
		m := got[i+1]
		if m.Role != w.Role || m.Content != w.Content {
			t.Errorf("message[%d] = {%s %q}, want {%s %q}", i+1, m.Role, m.Content, w.Role, w.Content)
		}
	}
}

func TestCompose_AssistantTurnsNotPrefixed(t *testing.T) {
	c := NewComposer("")
	turns := []history.Turn{{Assistant: true, Content: "plain reply"}}
	got := c.Compose(turns, "alice", "hi")

	if got[1].Content != "plain reply" {
		t.Errorf("assistant content = %q, want verbatim", got[1].Content)
	}
}

func TestNewComposer_Suffix(t *testing.T) {
	c := NewComposer("Always answer in French.")
	if !strings.HasSuffix(c.System(), "Always answer in French.") {
		t.Errorf("system = %q, want configured suffix appended", c.System())
	}

	plain := NewComposer("")
	if strings.Contains(plain.System(), "French") {
		t.Error("empty suffix should leave base instruction alone")
	}
}

func TestCompose_IsPure(t *testing.T) {
	c := NewComposer("")
	turns := []history.Turn{{Author: "alice", Content: "original"}}

	c.Compose(turns, "bob", "new")
	if turns[0].Content != "original" {
		t.Error("Compose mutated its input")
	}
}
