// Cohere adapter (Command family). Chat goes through the v2 API while model
// listing is still v1-only. Streaming is SSE with typed events: text arrives
// in content-delta, message-end is the explicit terminal event. Option names
// shrink on the wire (top_p becomes p, top_k becomes k).
package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
)

const cohereBaseURL = "https://api.cohere.ai"

// CohereClient implements Client against the Cohere chat API.
type CohereClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// NewCohereClient creates a Cohere adapter. baseURL is overridable for
// tests; empty means the public endpoint.
func NewCohereClient(baseURL, apiKey string) *CohereClient {
	if baseURL == "" {
		baseURL = cohereBaseURL
	}
	return &CohereClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, hc: newHTTPClient()}
}

type cohereMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type cohereChatPayload struct {
	Model       string          `json:"model"`
	Messages    []cohereMessage `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	P           *float64        `json:"p,omitempty"`
	K           *int            `json:"k,omitempty"`
}

type cohereChatResponse struct {
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

type cohereStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Message struct {
			Content struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
	} `json:"delta"`
}

type cohereModelList struct {
	Models []struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Endpoints   []string `json:"endpoints"`
	} `json:"models"`
}

func (c *CohereClient) Provider() string        { return TypeCohere }
func (c *CohereClient) SupportsVision() bool    { return false }
func (c *CohereClient) SupportsStreaming() bool { return true }
func (c *CohereClient) DefaultModel() string    { return "command-r-plus" }

func (c *CohereClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// ListModels lists models via the v1 endpoint, keeping only those that serve
// the chat endpoint, sorted by name.
func (c *CohereClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	status, body, err := doJSON(ctx, c.hc, http.MethodGet, c.baseURL+"/v1/models", c.headers(), nil)
	if err != nil {
		return c.fallbackModels(ClassifyTransport(err, TypeCohere))
	}
	if status != http.StatusOK {
		return c.fallbackModels(classifyCohereStatus(status, vendorMessage(body)))
	}
	var list cohereModelList
	if decodeErr := json.Unmarshal(body, &list); decodeErr != nil {
		return c.fallbackModels(NewError(fmt.Sprintf("decode models response: %v", decodeErr), TypeCohere, KindUnknown))
	}
	models := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		if !contains(m.Endpoints, "chat") {
			continue
		}
		models = append(models, ModelInfo{ID: m.Name, Name: m.Name, Description: m.Description})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// fallbackModels degrades model listing to the Command catalog on non-auth
// failures; auth errors propagate.
func (c *CohereClient) fallbackModels(e *Error) ([]ModelInfo, error) {
	if e.Kind == KindAuth {
		return nil, e
	}
	slog.Warn("cohere model listing failed, using fallback", "err", e.Message)
	return []ModelInfo{
		{ID: "command-r-plus", Name: "command-r-plus"},
		{ID: "command-r", Name: "command-r"},
		{ID: "command-light", Name: "command-light"},
	}, nil
}

// Chat performs one non-streaming v2 chat call. The response carries content
// as typed blocks; text blocks concatenate into the chunk content.
func (c *CohereClient) Chat(ctx context.Context, req ChatRequest) (ChatChunk, error) {
	payload := c.buildPayload(req, false)
	status, body, err := doJSON(ctx, c.hc, http.MethodPost, c.baseURL+"/v2/chat", c.headers(), payload)
	if err != nil {
		return ChatChunk{}, ClassifyTransport(err, TypeCohere)
	}
	if status != http.StatusOK {
		return ChatChunk{}, classifyCohereStatus(status, vendorMessage(body))
	}
	var parsed cohereChatResponse
	if decodeErr := json.Unmarshal(body, &parsed); decodeErr != nil {
		return ChatChunk{}, NewError(fmt.Sprintf("decode chat response: %v", decodeErr), TypeCohere, KindUnknown)
	}
	var content strings.Builder
	for _, block := range parsed.Message.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return ChatChunk{Role: RoleAssistant, Content: content.String(), Done: true}, nil
}

// ChatStream performs a streaming v2 chat call. message-end becomes the
// terminal chunk; a stream that ends without it surfaces as an interruption.
func (c *CohereClient) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error) {
	payload := c.buildPayload(req, true)
	resp, status, errBody, err := openStream(ctx, c.hc, c.baseURL+"/v2/chat", c.headers(), payload)
	if err != nil {
		return nil, ClassifyTransport(err, TypeCohere)
	}
	if resp == nil {
		return nil, classifyCohereStatus(status, vendorMessage(errBody))
	}

	ch := make(chan ChatChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close() //nolint:errcheck

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			line = strings.TrimPrefix(line, "data: ")
			var event cohereStreamEvent
			if decodeErr := json.Unmarshal([]byte(line), &event); decodeErr != nil {
				continue
			}
			switch event.Type {
			case "content-delta":
				if !sendChunk(ctx, ch, ChatChunk{Role: RoleAssistant, Content: event.Delta.Message.Content.Text}) {
					return
				}
			case "message-end":
				sendChunk(ctx, ch, doneChunk())
				return
			}
		}
		if scanErr := scanner.Err(); scanErr != nil {
			sendChunk(ctx, ch, errChunk(ClassifyTransport(scanErr, TypeCohere)))
			return
		}
		sendChunk(ctx, ch, errChunk(NewError("stream ended without terminal chunk", TypeCohere, KindConnection)))
	}()
	return ch, nil
}

// TestConnection probes by listing models.
func (c *CohereClient) TestConnection(ctx context.Context) (bool, string) {
	if c.apiKey == "" {
		return false, "API key missing"
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	models, err := c.ListModels(probeCtx)
	if err != nil {
		if e := AsError(err); e != nil {
			return false, e.UserMessage()
		}
		return false, fmt.Sprintf("Error: %v", err)
	}
	return true, fmt.Sprintf("Connected - %d model(s) available", len(models))
}

// NormalizeOptions maps to Cohere's short names (p, k); num_ctx stands in for
// max_tokens capped at 4096.
func (c *CohereClient) NormalizeOptions(opts map[string]any) map[string]any {
	if len(opts) == 0 {
		return map[string]any{}
	}
	out := map[string]any{}
	if v, ok := optFloat(opts, "temperature"); ok {
		out["temperature"] = v
	}
	if v, ok := optFloat(opts, "p"); ok {
		out["p"] = v
	} else if v, ok := optFloat(opts, "top_p"); ok {
		out["p"] = v
	}
	if v, ok := optInt(opts, "k"); ok {
		out["k"] = v
	} else if v, ok := optInt(opts, "top_k"); ok {
		out["k"] = v
	}
	if v, ok := optInt(opts, "max_tokens"); ok {
		out["max_tokens"] = v
	} else if v, ok := optInt(opts, "num_ctx"); ok {
		out["max_tokens"] = capInt(v, 4096)
	}
	return out
}

// buildPayload keeps roles as-is (the v2 API accepts system turns) but still
// enforces the single-system contract by hoisting the first system message to
// the front.
func (c *CohereClient) buildPayload(req ChatRequest, stream bool) cohereChatPayload {
	system, rest := splitSystem(req.Messages)
	msgs := make([]cohereMessage, 0, len(rest)+1)
	if system != "" {
		msgs = append(msgs, cohereMessage{Role: RoleSystem, Content: system})
	}
	for _, m := range rest {
		msgs = append(msgs, cohereMessage{Role: m.Role, Content: m.Content})
	}

	payload := cohereChatPayload{Model: req.Model, Messages: msgs, Stream: stream}
	opts := c.NormalizeOptions(req.Options)
	if v, ok := optFloat(opts, "temperature"); ok {
		payload.Temperature = &v
	}
	if v, ok := optFloat(opts, "p"); ok {
		payload.P = &v
	}
	if v, ok := optInt(opts, "k"); ok {
		payload.K = &v
	}
	if v, ok := optInt(opts, "max_tokens"); ok {
		payload.MaxTokens = &v
	}
	return payload
}

// classifyCohereStatus maps Cohere HTTP failures onto the shared taxonomy.
func classifyCohereStatus(status int, message string) *Error {
	kind := KindUnknown
	switch {
	case status == http.StatusUnauthorized:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == http.StatusBadRequest:
		kind = KindInvalidReq
	case status >= http.StatusInternalServerError:
		kind = KindServerError
	}
	return &Error{Message: message, Provider: TypeCohere, Kind: kind, HTTPStatus: status}
}
