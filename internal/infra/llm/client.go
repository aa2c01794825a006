package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Client is the contract every vendor adapter implements. Adapters hold no
// shared mutable state: the factory builds an independent instance per
// descriptor, each owning its own HTTP client, so callers may run several
// adapters concurrently without locking.
type Client interface {
	// Provider returns the provider type name ("ollama", "openai", ...).
	Provider() string

	// ListModels enumerates available models. On a list-endpoint failure it
	// degrades to the default model (or a static fallback list) instead of
	// failing — unless the failure is an auth error, which propagates.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Chat issues exactly one non-streaming vendor call. It runs through the
	// same message and system-prompt normalization as streaming.
	Chat(ctx context.Context, req ChatRequest) (ChatChunk, error)

	// ChatStream issues one streaming vendor call. The returned channel is
	// finite and non-restartable; it closes after the terminal chunk.
	// Cancelling ctx abandons the stream and closes the vendor connection.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error)

	// TestConnection is a lightweight liveness probe. It never returns an
	// error: failures become (false, human-readable message).
	TestConnection(ctx context.Context) (bool, string)

	SupportsVision() bool
	SupportsStreaming() bool
	DefaultModel() string

	// NormalizeOptions converts normalized option names into the vendor's
	// parameter names. Idempotent: vendor-shaped keys pass through unchanged.
	NormalizeOptions(opts map[string]any) map[string]any
}

// Per-adapter HTTP timeouts: connection establishment and response-header
// arrival are bounded; the body read is not, since a streamed completion can
// legitimately run for minutes. Cancellation of long reads is ctx-driven.
const (
	connectTimeout = 10 * time.Second
	headerTimeout  = 300 * time.Second
	probeTimeout   = 5 * time.Second
)

// newHTTPClient builds the per-adapter HTTP client.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
			ResponseHeaderTimeout: headerTimeout,
			Proxy:                 http.ProxyFromEnvironment,
		},
	}
}

// doJSON posts (or gets) a JSON payload and returns the decoded status and
// body. The caller classifies non-2xx statuses; transport failures come back
// as plain errors for ClassifyTransport.
func doJSON(ctx context.Context, hc *http.Client, method, url string, headers map[string]string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// openStream posts a JSON payload and hands back the live response body for
// incremental reads. On non-2xx the body is drained, closed and returned as
// (status, errorBody, nil) so the caller can classify it.
func openStream(ctx context.Context, hc *http.Client, url string, headers map[string]string, payload any) (*http.Response, int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close() //nolint:errcheck
		return nil, resp.StatusCode, errBody, nil
	}
	return resp, resp.StatusCode, nil, nil
}

// vendorMessage extracts a vendor error string from a JSON error body,
// falling back to the raw body text.
func vendorMessage(body []byte) string {
	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if wrapped.Error.Message != "" {
			return wrapped.Error.Message
		}
		if wrapped.Message != "" {
			return wrapped.Message
		}
	}
	return string(body)
}

// sendChunk pushes a chunk unless ctx is cancelled first.
// Returns false when the consumer is gone.
func sendChunk(ctx context.Context, ch chan<- ChatChunk, chunk ChatChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// errChunk is the terminal chunk for a stream that failed mid-flight.
func errChunk(e *Error) ChatChunk {
	return ChatChunk{Role: RoleAssistant, Done: true, Err: e}
}

// doneChunk is the synthesized terminal chunk for vendors whose wire format
// has no explicit done flag.
func doneChunk() ChatChunk {
	return ChatChunk{Role: RoleAssistant, Content: "", Done: true}
}
