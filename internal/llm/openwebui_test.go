package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func completionBody(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` +
		string(mustJSON(content)) + `},"finish_reason":"stop"}],` +
		`"usage":{"prompt_tokens":12,"completion_tokens":7}}`
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func TestChat_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("hello there")))
	}))
	defer srv.Close()

	c := NewOpenWebUIClient(srv.URL, "sekrit", nil)
	resp, err := c.Chat(context.Background(), "llama3.1:8b", []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "alice: hi"},
	}, nil)
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer sekrit" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotReq.Model != "llama3.1:8b" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if gotReq.Stream {
		t.Error("request asked for streaming")
	}
	if resp.Message.Content != "hello there" {
		t.Errorf("content = %q, want %q", resp.Message.Content, "hello there")
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 7 {
		t.Errorf("usage = %d/%d, want 12/7", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChat_TimeoutIsDistinguishable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	c := NewOpenWebUIClient(srv.URL, "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Chat(ctx, "m", []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestChat_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOpenWebUIClient(srv.URL, "", nil)
	_, err := c.Chat(context.Background(), "missing", []Message{{Role: RoleUser, Content: "hi"}}, nil)

	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BackendError", err)
	}
	if be.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", be.Status)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("HTTP error should not report as timeout")
	}
}

func TestChat_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenWebUIClient(srv.URL, "", nil)
	_, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}}, nil)

	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BackendError for empty choices", err)
	}
}

func TestChat_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [`))
	}))
	defer srv.Close()

	c := NewOpenWebUIClient(srv.URL, "", nil)
	_, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}}, nil)

	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BackendError for malformed body", err)
	}
}

func TestChat_ToolCallsRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"",` +
			`"tool_calls":[{"id":"call_1","type":"function",` +
			`"function":{"name":"add_numbers","arguments":"{\"a\":2,\"b\":3}"}}]},` +
			`"finish_reason":"tool_calls"}]}`))
	}))
	defer srv.Close()

	c := NewOpenWebUIClient(srv.URL, "", nil)
	resp, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "2+3?"}}, nil)
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Function.Name != "add_numbers" {
		t.Errorf("tool name = %q", tc.Function.Name)
	}
	if tc.ID != "call_1" {
		t.Errorf("tool call id = %q", tc.ID)
	}
}
