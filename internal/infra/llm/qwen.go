// Qwen (Alibaba DashScope) adapter. Message shape matches the OpenAI dialect
// but the envelope differs: messages nest under input, generation parameters
// under parameters, and streaming asks for incremental_output with the end
// of the stream signalled by finish_reason == "stop" instead of a done flag.
// Images are only attached for vision-capable models (qwen-vl* names).
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
	qwenBaseURL        = "https://dashscope.aliyuncs.com"
	qwenGenerationPath = "/api/v1/services/aigc/text-generation/generation"
	qwenTestModel      = "qwen-turbo"
)

// DashScope has no model-listing endpoint; the catalog is static.
var qwenModels = []ModelInfo{
	{ID: "qwen-max", Name: "Qwen Max", Description: "Most capable, best for complex tasks"},
	{ID: "qwen-plus", Name: "Qwen Plus", Description: "Balanced performance and cost"},
	{ID: "qwen-turbo", Name: "Qwen Turbo", Description: "Fast and affordable"},
	{ID: "qwen-long", Name: "Qwen Long", Description: "Very long context (10M tokens)"},
	{ID: "qwen-vl-max", Name: "Qwen VL Max", Description: "Vision-language, advanced multimodal"},
	{ID: "qwen-vl-plus", Name: "Qwen VL Plus", Description: "Vision-language, balanced"},
}

// QwenClient implements Client against the DashScope generation API.
type QwenClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// NewQwenClient creates a Qwen adapter. baseURL is overridable for tests;
// empty means the public endpoint.
func NewQwenClient(baseURL, apiKey string) *QwenClient {
	if baseURL == "" {
		baseURL = qwenBaseURL
	}
	return &QwenClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, hc: newHTTPClient()}
}

type qwenMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or parts for qwen-vl models
}

type qwenPayload struct {
	Model      string         `json:"model"`
	Input      qwenInput      `json:"input"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type qwenInput struct {
	Messages []qwenMessage `json:"messages"`
}

type qwenResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *QwenClient) Provider() string        { return TypeQwen }
func (c *QwenClient) SupportsVision() bool    { return true }
func (c *QwenClient) SupportsStreaming() bool { return true }
func (c *QwenClient) DefaultModel() string    { return "qwen-plus" }

func (c *QwenClient) headers(sse bool) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if sse {
		h["X-DashScope-SSE"] = "enable"
	}
	return h
}

// ListModels returns the static catalog.
func (c *QwenClient) ListModels(_ context.Context) ([]ModelInfo, error) {
	out := make([]ModelInfo, len(qwenModels))
	copy(out, qwenModels)
	return out, nil
}

// Chat performs one non-streaming generation call.
func (c *QwenClient) Chat(ctx context.Context, req ChatRequest) (ChatChunk, error) {
	payload := c.buildPayload(req, false)
	status, body, err := doJSON(ctx, c.hc, http.MethodPost, c.baseURL+qwenGenerationPath, c.headers(false), payload)
	if err != nil {
		return ChatChunk{}, ClassifyTransport(err, TypeQwen)
	}
	var parsed qwenResponse
	if decodeErr := json.Unmarshal(body, &parsed); decodeErr != nil && status == http.StatusOK {
		return ChatChunk{}, NewError(fmt.Sprintf("decode generation response: %v", decodeErr), TypeQwen, KindUnknown)
	}
	if status != http.StatusOK {
		return ChatChunk{}, &Error{
			Message: parsed.Message, Provider: TypeQwen,
			Kind: ClassifyQwenCode(parsed.Code), HTTPStatus: status,
		}
	}
	content := ""
	if len(parsed.Output.Choices) > 0 {
		content = parsed.Output.Choices[0].Message.Content
	}
	return ChatChunk{Role: RoleAssistant, Content: content, Done: true}, nil
}

// ChatStream performs a streaming generation call with incremental_output.
// DashScope ends the stream with finish_reason == "stop" rather than an
// explicit done boolean; that event becomes the terminal chunk.
func (c *QwenClient) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error) {
	payload := c.buildPayload(req, true)
	resp, status, errBody, err := openStream(ctx, c.hc, c.baseURL+qwenGenerationPath, c.headers(true), payload)
	if err != nil {
		return nil, ClassifyTransport(err, TypeQwen)
	}
	if resp == nil {
		var parsed qwenResponse
		if decodeErr := json.Unmarshal(errBody, &parsed); decodeErr == nil && parsed.Code != "" {
			return nil, &Error{Message: parsed.Message, Provider: TypeQwen, Kind: ClassifyQwenCode(parsed.Code), HTTPStatus: status}
		}
		return nil, ClassifyHTTP(status, vendorMessage(errBody), TypeQwen)
	}

	ch := make(chan ChatChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close() //nolint:errcheck

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var event qwenResponse
			if decodeErr := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &event); decodeErr != nil {
				continue
			}
			if event.Code != "" {
				sendChunk(ctx, ch, errChunk(&Error{Message: event.Message, Provider: TypeQwen, Kind: ClassifyQwenCode(event.Code)}))
				return
			}
			if len(event.Output.Choices) == 0 {
				continue
			}
			choice := event.Output.Choices[0]
			done := choice.FinishReason == "stop"
			if !sendChunk(ctx, ch, ChatChunk{Role: RoleAssistant, Content: choice.Message.Content, Done: done}) {
				return
			}
			if done {
				return
			}
		}
		if scanErr := scanner.Err(); scanErr != nil {
			sendChunk(ctx, ch, errChunk(ClassifyTransport(scanErr, TypeQwen)))
			return
		}
		sendChunk(ctx, ch, errChunk(NewError("stream ended without finish_reason", TypeQwen, KindConnection)))
	}()
	return ch, nil
}

// TestConnection sends a minimal one-token request against qwen-turbo.
func (c *QwenClient) TestConnection(ctx context.Context) (bool, string) {
	if c.apiKey == "" {
		return false, "API key missing"
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	payload := qwenPayload{
		Model:      qwenTestModel,
		Input:      qwenInput{Messages: []qwenMessage{{Role: RoleUser, Content: "Hi"}}},
		Parameters: map[string]any{"result_format": "message", "max_tokens": 5},
	}
	status, body, err := doJSON(probeCtx, c.hc, http.MethodPost, c.baseURL+qwenGenerationPath, c.headers(false), payload)
	if err != nil {
		return false, ClassifyTransport(err, TypeQwen).UserMessage()
	}
	if status != http.StatusOK {
		return false, fmt.Sprintf("Error: %s", vendorMessage(body))
	}
	return true, "Connected to DashScope (Qwen)"
}

// NormalizeOptions maps to DashScope parameter names; repeat_penalty becomes
// repetition_penalty unchanged, num_ctx stands in for max_tokens capped at
// 8192.
func (c *QwenClient) NormalizeOptions(opts map[string]any) map[string]any {
	if len(opts) == 0 {
		return map[string]any{}
	}
	out := map[string]any{}
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
		out["max_tokens"] = capInt(v, 8192)
	}
	if v, ok := optFloat(opts, "repetition_penalty"); ok {
		out["repetition_penalty"] = v
	} else if v, ok := optFloat(opts, "repeat_penalty"); ok {
		out["repetition_penalty"] = v
	}
	return out
}

// buildPayload assembles the DashScope envelope. Images attach only when the
// model is vision-capable.
func (c *QwenClient) buildPayload(req ChatRequest, stream bool) qwenPayload {
	system, rest := splitSystem(req.Messages)
	msgs := make([]qwenMessage, 0, len(rest)+1)
	if system != "" {
		msgs = append(msgs, qwenMessage{Role: RoleSystem, Content: system})
	}
	for _, m := range rest {
		msgs = append(msgs, qwenMessage{Role: m.Role, Content: m.Content})
	}
	if len(req.Images) > 0 && strings.HasPrefix(req.Model, "qwen-vl") {
		msgs = attachQwenImages(msgs, req.Images)
	}

	params := c.NormalizeOptions(req.Options)
	params["result_format"] = "message"
	if stream {
		params["incremental_output"] = true
	}
	return qwenPayload{Model: req.Model, Input: qwenInput{Messages: msgs}, Parameters: params}
}

func attachQwenImages(msgs []qwenMessage, images []string) []qwenMessage {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != RoleUser {
			continue
		}
		text, _ := msgs[i].Content.(string)
		parts := []map[string]string{{"text": text}}
		for _, img := range images {
			parts = append(parts, map[string]string{"image": "data:image/jpeg;base64," + img})
		}
		msgs[i].Content = parts
		break
	}
	return msgs
}
