package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestQwenClient_ChatStream_FinishReasonStop(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-DashScope-SSE") != "enable" {
			http.Error(w, "sse header missing", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, `data:{"output":{"choices":[{"message":{"content":"Hel"},"finish_reason":"null"}]}}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `data:{"output":{"choices":[{"message":{"content":"lo"},"finish_reason":"stop"}]}}`)
	}))
	defer srv.Close()

	c := NewQwenClient(srv.URL, "sk-test")
	ch, err := c.ChatStream(testCtx(t), ChatRequest{
		Model:    "qwen-plus",
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

func TestQwenClient_ChatStream_ErrorEvent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `data:{"code":"Throttling.RateQuota","message":"Requests throttled"}`)
	}))
	defer srv.Close()

	c := NewQwenClient(srv.URL, "sk-test")
	ch, err := c.ChatStream(testCtx(t), ChatRequest{Model: "qwen-plus", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	chunks := collectChunks(t, ch)
	assertSingleTerminal(t, chunks)
	last := chunks[len(chunks)-1]
	if last.Err == nil || last.Err.Kind != KindRateLimit {
		t.Errorf("expected rate_limit error terminal, got %+v", last)
	}
}

func TestQwenClient_BuildPayload_Envelope(t *testing.T) {
	t.Parallel()

	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &raw) //nolint:errcheck
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"output": map[string]any{"choices": []map[string]any{
				{"message": map[string]string{"content": "ok"}, "finish_reason": "stop"},
			}},
		})
	}))
	defer srv.Close()

	c := NewQwenClient(srv.URL, "sk-test")
	_, err := c.Chat(testCtx(t), ChatRequest{
		Model:    "qwen-plus",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Options:  map[string]any{"temperature": 0.5},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if _, ok := raw["input"].(map[string]any)["messages"]; !ok {
		t.Error("messages must nest under input")
	}
	params := raw["parameters"].(map[string]any)
	if params["result_format"] != "message" {
		t.Errorf("result_format = %v, want message", params["result_format"])
	}
	if _, ok := params["incremental_output"]; ok {
		t.Error("non-streaming call must not request incremental_output")
	}
}

func TestQwenClient_Images_OnlyForVisionModels(t *testing.T) {
	t.Parallel()

	c := NewQwenClient("", "sk-test")
	req := ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "look"}},
		Images:   []string{"aGVsbG8="},
	}

	req.Model = "qwen-plus"
	payload := c.buildPayload(req, false)
	if _, ok := payload.Input.Messages[0].Content.(string); !ok {
		t.Error("text model should keep plain string content")
	}

	req.Model = "qwen-vl-max"
	payload = c.buildPayload(req, false)
	if _, ok := payload.Input.Messages[0].Content.(string); ok {
		t.Error("vision model should rewrite content into parts")
	}
}

func TestQwenClient_NormalizeOptions(t *testing.T) {
	t.Parallel()

	c := NewQwenClient("", "sk-test")
	out := c.NormalizeOptions(map[string]any{"repeat_penalty": 1.1, "num_ctx": 100000})
	if got := out["repetition_penalty"].(float64); got != 1.1 {
		t.Errorf("repetition_penalty = %v, want 1.1", got)
	}
	if got := out["max_tokens"].(int); got != 8192 {
		t.Errorf("max_tokens = %v, want 8192", got)
	}
	// Vendor-shaped input passes through unchanged.
	twice := c.NormalizeOptions(out)
	if got := twice["repetition_penalty"].(float64); got != 1.1 {
		t.Errorf("second normalization changed repetition_penalty: %v", got)
	}
}

func TestQwenClient_Chat_ErrorCodeClassified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"code":"InvalidApiKey","message":"Invalid API-key provided."}`)
	}))
	defer srv.Close()

	c := NewQwenClient(srv.URL, "sk-bad")
	_, err := c.Chat(testCtx(t), ChatRequest{Model: "qwen-plus", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	e := AsError(err)
	if e == nil || e.Kind != KindAuth {
		t.Fatalf("expected auth_error, got %v", err)
	}
}
