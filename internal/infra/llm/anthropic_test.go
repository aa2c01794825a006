package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicClient_ChatStream_DeltasThenMessageStop(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "unexpected path", http.StatusNotFound)
			return
		}
		if r.Header.Get("x-api-key") != "sk-ant-test" || r.Header.Get("anthropic-version") != anthropicVersion {
			http.Error(w, "bad headers", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, `event: content_block_delta`)
		fmt.Fprintln(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `data: {"type":"message_stop"}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient(srv.URL, "sk-ant-test")
	ch, err := c.ChatStream(testCtx(t), ChatRequest{
		Model:    "claude-3-5-sonnet-20241022",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	chunks := collectChunks(t, ch)
	assertSingleTerminal(t, chunks)
	if got := streamText(chunks); got != "Hello" {
		t.Errorf("assembled text = %q, want %q", got, "Hello")
	}
}

func TestAnthropicClient_BuildPayload_SystemHoisted(t *testing.T) {
	t.Parallel()

	var captured anthropicChatPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured) //nolint:errcheck
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"content": []map[string]string{{"type": "text", "text": "ok"}},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient(srv.URL, "sk-ant-test")
	_, err := c.Chat(testCtx(t), ChatRequest{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if captured.System != "be brief" {
		t.Errorf("system field = %q, want hoisted system prompt", captured.System)
	}
	for _, m := range captured.Messages {
		if m.Role == RoleSystem {
			t.Errorf("system turn leaked into messages: %+v", m)
		}
	}
	if captured.MaxTokens == 0 {
		t.Error("max_tokens is mandatory and must be set")
	}
}

func TestAnthropicClient_NormalizeOptions_MaxTokensAlwaysSet(t *testing.T) {
	t.Parallel()

	c := NewAnthropicClient("", "sk-ant-test")
	out := c.NormalizeOptions(nil)
	if got := out["max_tokens"].(int); got != anthropicMaxTokens {
		t.Errorf("default max_tokens = %v, want %d", got, anthropicMaxTokens)
	}
	out = c.NormalizeOptions(map[string]any{"num_ctx": 100000})
	if got := out["max_tokens"].(int); got != anthropicMaxTokens {
		t.Errorf("num_ctx should cap at %d, got %v", anthropicMaxTokens, got)
	}
	out = c.NormalizeOptions(map[string]any{"max_tokens": 1000})
	if got := out["max_tokens"].(int); got != 1000 {
		t.Errorf("explicit max_tokens should win, got %v", got)
	}
}

func TestAnthropicClient_ListModels_StaticCatalog(t *testing.T) {
	t.Parallel()

	c := NewAnthropicClient("", "sk-ant-test")
	models, err := c.ListModels(testCtx(t))
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) == 0 {
		t.Fatal("static catalog must not be empty")
	}
	// Callers may mutate the returned slice; the catalog must not change.
	models[0].ID = "mutated"
	again, _ := c.ListModels(testCtx(t))
	if again[0].ID == "mutated" {
		t.Error("catalog aliasing: returned slice shares backing array")
	}
}

func TestAnthropicClient_TestConnection_MissingKey(t *testing.T) {
	t.Parallel()

	c := NewAnthropicClient("", "")
	ok, msg := c.TestConnection(testCtx(t))
	if ok {
		t.Error("missing key must fail without a network call")
	}
	if msg != "API key missing" {
		t.Errorf("message = %q", msg)
	}
}
