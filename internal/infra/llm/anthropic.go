// Anthropic adapter. The messages API differs from the OpenAI dialect in two
// structural ways: the system prompt travels in a dedicated top-level field
// (no system-role turns allowed in messages), and max_tokens is mandatory.
// Streaming is SSE with typed events; text arrives in content_block_delta.
package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
	anthropicMaxTokens  = 4096
	anthropicTestModel  = "claude-3-haiku-20240307"
	anthropicChatModels = "/v1/messages"
)

// The API has no model-listing endpoint; the catalog is static.
var anthropicModels = []ModelInfo{
	{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", Description: "Most intelligent, best for complex tasks"},
	{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", Description: "Fast and affordable"},
	{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus", Description: "Most powerful Claude 3 model"},
	{ID: "claude-3-sonnet-20240229", Name: "Claude 3 Sonnet", Description: "Balanced performance and cost"},
	{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", Description: "Fastest Claude 3 model"},
}

// AnthropicClient implements Client against the Anthropic messages API.
type AnthropicClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// NewAnthropicClient creates an Anthropic adapter. baseURL is overridable
// for tests; empty means the public endpoint.
func NewAnthropicClient(baseURL, apiKey string) *AnthropicClient {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, hc: newHTTPClient()}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or content blocks for vision
}

type anthropicImageBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Source *struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"source,omitempty"`
}

type anthropicChatPayload struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
}

type anthropicChatResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (c *AnthropicClient) Provider() string        { return TypeAnthropic }
func (c *AnthropicClient) SupportsVision() bool    { return true }
func (c *AnthropicClient) SupportsStreaming() bool { return true }
func (c *AnthropicClient) DefaultModel() string    { return "claude-3-5-sonnet-20241022" }

func (c *AnthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

// ListModels returns the static catalog.
func (c *AnthropicClient) ListModels(_ context.Context) ([]ModelInfo, error) {
	out := make([]ModelInfo, len(anthropicModels))
	copy(out, anthropicModels)
	return out, nil
}

// Chat performs one non-streaming messages call.
func (c *AnthropicClient) Chat(ctx context.Context, req ChatRequest) (ChatChunk, error) {
	payload := c.buildPayload(req, false)
	status, body, err := doJSON(ctx, c.hc, http.MethodPost, c.baseURL+anthropicChatModels, c.headers(), payload)
	if err != nil {
		return ChatChunk{}, ClassifyTransport(err, TypeAnthropic)
	}
	if status != http.StatusOK {
		return ChatChunk{}, ClassifyAnthropic(status, vendorMessage(body))
	}
	var parsed anthropicChatResponse
	if decodeErr := json.Unmarshal(body, &parsed); decodeErr != nil {
		return ChatChunk{}, NewError(fmt.Sprintf("decode messages response: %v", decodeErr), TypeAnthropic, KindUnknown)
	}
	var content strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return ChatChunk{Role: RoleAssistant, Content: content.String(), Done: true}, nil
}

// ChatStream performs a streaming messages call. Text deltas come from
// content_block_delta events; message_stop marks the end, after which the
// single terminal chunk is synthesized (the wire has no done boolean).
func (c *AnthropicClient) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error) {
	payload := c.buildPayload(req, true)
	resp, status, errBody, err := openStream(ctx, c.hc, c.baseURL+anthropicChatModels, c.headers(), payload)
	if err != nil {
		return nil, ClassifyTransport(err, TypeAnthropic)
	}
	if resp == nil {
		return nil, ClassifyAnthropic(status, vendorMessage(errBody))
	}

	ch := make(chan ChatChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close() //nolint:errcheck

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event anthropicStreamEvent
			if decodeErr := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); decodeErr != nil {
				continue
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Type != "text_delta" {
					continue
				}
				if !sendChunk(ctx, ch, ChatChunk{Role: RoleAssistant, Content: event.Delta.Text}) {
					return
				}
			case "message_stop":
				sendChunk(ctx, ch, doneChunk())
				return
			case "error":
				sendChunk(ctx, ch, errChunk(NewError("stream error event", TypeAnthropic, KindServerError)))
				return
			}
		}
		if scanErr := scanner.Err(); scanErr != nil {
			sendChunk(ctx, ch, errChunk(ClassifyTransport(scanErr, TypeAnthropic)))
			return
		}
		sendChunk(ctx, ch, errChunk(NewError("stream ended without terminal chunk", TypeAnthropic, KindConnection)))
	}()
	return ch, nil
}

// TestConnection sends a minimal one-token request against the cheapest
// model. A missing key short-circuits without a network call.
func (c *AnthropicClient) TestConnection(ctx context.Context) (bool, string) {
	if c.apiKey == "" {
		return false, "API key missing"
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	payload := anthropicChatPayload{
		Model:     anthropicTestModel,
		Messages:  []anthropicMessage{{Role: RoleUser, Content: "Hi"}},
		MaxTokens: 5,
	}
	status, body, err := doJSON(probeCtx, c.hc, http.MethodPost, c.baseURL+anthropicChatModels, c.headers(), payload)
	if err != nil {
		return false, ClassifyTransport(err, TypeAnthropic).UserMessage()
	}
	if status != http.StatusOK {
		return false, ClassifyAnthropic(status, vendorMessage(body)).UserMessage()
	}
	return true, "Connected to Anthropic"
}

// NormalizeOptions always produces max_tokens (the API requires it): explicit
// max_tokens wins, then num_ctx capped at 4096, then the 4096 default.
func (c *AnthropicClient) NormalizeOptions(opts map[string]any) map[string]any {
	out := map[string]any{"max_tokens": anthropicMaxTokens}
	if v, ok := optFloat(opts, "temperature"); ok {
		out["temperature"] = v
	}
	if v, ok := optFloat(opts, "top_p"); ok {
		out["top_p"] = v
	}
	if v, ok := optInt(opts, "top_k"); ok {
		out["top_k"] = v
	}
	if v, ok := optInt(opts, "max_tokens"); ok {
		out["max_tokens"] = v
	} else if v, ok := optInt(opts, "num_ctx"); ok {
		out["max_tokens"] = capInt(v, anthropicMaxTokens)
	}
	return out
}

// buildPayload extracts the first system message into the dedicated field
// and attaches images as base64 source blocks on the last user turn.
func (c *AnthropicClient) buildPayload(req ChatRequest, stream bool) anthropicChatPayload {
	system, rest := splitSystem(req.Messages)
	msgs := make([]anthropicMessage, 0, len(rest))
	for _, m := range rest {
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	if len(req.Images) > 0 {
		msgs = attachAnthropicImages(msgs, req.Images)
	}

	payload := anthropicChatPayload{
		Model:     req.Model,
		System:    system,
		Messages:  msgs,
		MaxTokens: anthropicMaxTokens,
		Stream:    stream,
	}
	opts := c.NormalizeOptions(req.Options)
	if v, ok := optInt(opts, "max_tokens"); ok {
		payload.MaxTokens = v
	}
	if v, ok := optFloat(opts, "temperature"); ok {
		payload.Temperature = &v
	}
	if v, ok := optFloat(opts, "top_p"); ok {
		payload.TopP = &v
	}
	if v, ok := optInt(opts, "top_k"); ok {
		payload.TopK = &v
	}
	return payload
}

func attachAnthropicImages(msgs []anthropicMessage, images []string) []anthropicMessage {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != RoleUser {
			continue
		}
		text, _ := msgs[i].Content.(string)
		blocks := []anthropicImageBlock{{Type: "text", Text: text}}
		for _, img := range images {
			block := anthropicImageBlock{Type: "image"}
			block.Source = &struct {
				Type      string `json:"type"`
				MediaType string `json:"media_type"`
				Data      string `json:"data"`
			}{Type: "base64", MediaType: sniffImageMIME(img), Data: img}
			blocks = append(blocks, block)
		}
		msgs[i].Content = blocks
		break
	}
	return msgs
}
