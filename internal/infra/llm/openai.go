// OpenAI-compatible adapter. One implementation covers every vendor speaking
// the chat.completions dialect: OpenAI, LM Studio, Groq, Mistral, OpenRouter,
// DeepSeek, Cerebras, HuggingFace inference and generic openai_compatible
// endpoints. Per-vendor quirks (base URL, /v1 suffix, rejected parameters,
// vision support, placeholder API keys) live in the config table below.
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

// openAIProviderConfig captures one vendor's deviations from stock OpenAI.
type openAIProviderConfig struct {
	baseURL           string
	defaultModel      string
	supportsVision    bool
	defaultAPIKey     string   // placeholder key for local servers
	requiresV1Suffix  bool     // normalize the base URL to end with /v1
	unsupportedParams []string // option keys the vendor rejects
}

var openAIProviderConfigs = map[string]openAIProviderConfig{
	TypeOpenAI: {
		baseURL:        "https://api.openai.com/v1",
		defaultModel:   "gpt-4o-mini",
		supportsVision: true,
	},
	TypeLMStudio: {
		baseURL:          "http://localhost:1234/v1",
		supportsVision:   true,
		defaultAPIKey:    "lm-studio",
		requiresV1Suffix: true,
	},
	TypeGroq: {
		baseURL:      "https://api.groq.com/openai/v1",
		defaultModel: "llama-3.3-70b-versatile",
	},
	TypeMistral: {
		baseURL:      "https://api.mistral.ai/v1",
		defaultModel: "mistral-large-latest",
	},
	TypeOpenRouter: {
		baseURL:        "https://openrouter.ai/api/v1",
		defaultModel:   "anthropic/claude-3.5-sonnet",
		supportsVision: true,
	},
	TypeDeepSeek: {
		baseURL:      "https://api.deepseek.com",
		defaultModel: "deepseek-chat",
	},
	TypeCerebras: {
		baseURL:           "https://api.cerebras.ai/v1",
		defaultModel:      "llama-3.3-70b",
		unsupportedParams: []string{"frequency_penalty", "presence_penalty", "top_p"},
	},
	TypeHuggingFace: {
		baseURL:           "https://api-inference.huggingface.co/v1",
		defaultModel:      "mistralai/Mistral-7B-Instruct-v0.3",
		unsupportedParams: []string{"frequency_penalty", "presence_penalty"},
	},
	TypeOpenAICompatible: {
		supportsVision:   true,
		defaultAPIKey:    "not-needed",
		requiresV1Suffix: true,
	},
}

// OpenAIClient implements Client for the OpenAI-compatible family.
type OpenAIClient struct {
	providerType string
	cfg          openAIProviderConfig
	baseURL      string
	apiKey       string
	extraHeaders map[string]string
	hc           *http.Client
}

// NewOpenAIClient creates an adapter for one OpenAI-compatible vendor.
// baseURL and apiKey fall back to the vendor defaults when empty.
func NewOpenAIClient(providerType, baseURL, apiKey string, extraHeaders map[string]string) *OpenAIClient {
	cfg := openAIProviderConfigs[providerType]
	if baseURL == "" {
		baseURL = cfg.baseURL
	}
	if cfg.requiresV1Suffix {
		baseURL = normalizeV1URL(baseURL)
	}
	if apiKey == "" {
		apiKey = cfg.defaultAPIKey
	}
	return &OpenAIClient{
		providerType: providerType,
		cfg:          cfg,
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		extraHeaders: extraHeaders,
		hc:           newHTTPClient(),
	}
}

// normalizeV1URL ensures the base URL ends with /v1 (LM Studio and most
// local OpenAI-compatible servers route under it).
func normalizeV1URL(url string) string {
	if url == "" {
		return url
	}
	url = strings.TrimRight(url, "/")
	if strings.HasSuffix(url, "/v1") {
		return url
	}
	return url + "/v1"
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or content parts for vision
}

type openAIContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openAIChatPayload struct {
	Model            string          `json:"model"`
	Messages         []openAIMessage `json:"messages"`
	Stream           bool            `json:"stream"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIModelList struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

func (c *OpenAIClient) Provider() string        { return c.providerType }
func (c *OpenAIClient) SupportsVision() bool    { return c.cfg.supportsVision }
func (c *OpenAIClient) SupportsStreaming() bool { return true }
func (c *OpenAIClient) DefaultModel() string    { return c.cfg.defaultModel }

// headers builds per-request headers: bearer auth, OpenRouter attribution
// defaults, then caller-supplied extras.
func (c *OpenAIClient) headers() map[string]string {
	h := map[string]string{}
	if c.apiKey != "" {
		h["Authorization"] = "Bearer " + c.apiKey
	}
	if c.providerType == TypeOpenRouter {
		h["HTTP-Referer"] = "https://nova.local"
		h["X-Title"] = "Nova"
	}
	for k, v := range c.extraHeaders {
		h[k] = v
	}
	return h
}

// ListModels enumerates via GET /models, sorted by id. Non-auth failures
// degrade to the default model or a static placeholder pair.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	status, body, err := doJSON(ctx, c.hc, http.MethodGet, c.baseURL+"/models", c.headers(), nil)
	if err != nil {
		return c.fallbackModels(ClassifyTransport(err, c.providerType))
	}
	if status != http.StatusOK {
		return c.fallbackModels(ClassifyOpenAI(status, vendorMessage(body), c.providerType))
	}
	var list openAIModelList
	if decodeErr := json.Unmarshal(body, &list); decodeErr != nil {
		return c.fallbackModels(NewError(fmt.Sprintf("decode model list: %v", decodeErr), c.providerType, KindUnknown))
	}
	models := make([]ModelInfo, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, ModelInfo{ID: m.ID, Name: m.ID})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

func (c *OpenAIClient) fallbackModels(e *Error) ([]ModelInfo, error) {
	if e.Kind == KindAuth {
		return nil, e
	}
	slog.Warn("model listing failed, using fallback", "provider", c.providerType, "err", e.Message)
	if c.cfg.defaultModel != "" {
		return []ModelInfo{{ID: c.cfg.defaultModel, Name: c.cfg.defaultModel}}, nil
	}
	// Some OpenAI-compatible endpoints expose no /models route at all
	// (audio-only servers); advertise the stock audio pair.
	return []ModelInfo{
		{ID: "tts-1", Name: "tts-1 (Default)"},
		{ID: "whisper-1", Name: "whisper-1"},
	}, nil
}

// Chat performs one non-streaming chat.completions call.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (ChatChunk, error) {
	payload := c.buildPayload(req, false)
	status, body, err := doJSON(ctx, c.hc, http.MethodPost, c.baseURL+"/chat/completions", c.headers(), payload)
	if err != nil {
		return ChatChunk{}, ClassifyTransport(err, c.providerType)
	}
	if status != http.StatusOK {
		return ChatChunk{}, ClassifyOpenAI(status, vendorMessage(body), c.providerType)
	}
	var parsed openAIChatResponse
	if decodeErr := json.Unmarshal(body, &parsed); decodeErr != nil {
		return ChatChunk{}, NewError(fmt.Sprintf("decode chat response: %v", decodeErr), c.providerType, KindUnknown)
	}
	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}
	return ChatChunk{Role: RoleAssistant, Content: content, Done: true}, nil
}

// ChatStream performs a streaming chat.completions call, consuming SSE lines
// with incremental delta.content. A non-nil finish_reason marks the terminal
// chunk; an SSE [DONE] sentinel without one gets a synthesized terminal.
func (c *OpenAIClient) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error) {
	payload := c.buildPayload(req, true)
	resp, status, errBody, err := openStream(ctx, c.hc, c.baseURL+"/chat/completions", c.headers(), payload)
	if err != nil {
		return nil, ClassifyTransport(err, c.providerType)
	}
	if resp == nil {
		return nil, ClassifyOpenAI(status, vendorMessage(errBody), c.providerType)
	}

	ch := make(chan ChatChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close() //nolint:errcheck

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				sendChunk(ctx, ch, doneChunk())
				return
			}
			var chunk openAIStreamChunk
			if decodeErr := json.Unmarshal([]byte(data), &chunk); decodeErr != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			done := choice.FinishReason != nil && *choice.FinishReason != ""
			if !sendChunk(ctx, ch, ChatChunk{Role: RoleAssistant, Content: choice.Delta.Content, Done: done}) {
				return
			}
			if done {
				return
			}
		}
		if scanErr := scanner.Err(); scanErr != nil {
			sendChunk(ctx, ch, errChunk(ClassifyTransport(scanErr, c.providerType)))
			return
		}
		sendChunk(ctx, ch, errChunk(NewError("stream ended without terminal chunk", c.providerType, KindConnection)))
	}()
	return ch, nil
}

// TestConnection probes by listing models.
func (c *OpenAIClient) TestConnection(ctx context.Context) (bool, string) {
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

// NormalizeOptions maps normalized option names to OpenAI parameter names,
// suppressing keys this vendor rejects. repeat_penalty is approximated as
// frequency_penalty = clamp(repeat_penalty-1, 0, 2); num_ctx stands in for
// max_tokens, capped at 4096.
func (c *OpenAIClient) NormalizeOptions(opts map[string]any) map[string]any {
	if len(opts) == 0 {
		return map[string]any{}
	}
	out := map[string]any{}
	unsupported := c.cfg.unsupportedParams
	if v, ok := optFloat(opts, "temperature"); ok {
		out["temperature"] = v
	}
	if v, ok := optFloat(opts, "top_p"); ok && !contains(unsupported, "top_p") {
		out["top_p"] = v
	}
	if v, ok := optInt(opts, "max_tokens"); ok {
		out["max_tokens"] = v
	} else if v, ok := optInt(opts, "num_ctx"); ok {
		out["max_tokens"] = capInt(v, 4096)
	}
	if !contains(unsupported, "frequency_penalty") {
		if v, ok := optFloat(opts, "frequency_penalty"); ok {
			out["frequency_penalty"] = v
		} else if v, ok := optFloat(opts, "repeat_penalty"); ok {
			out["frequency_penalty"] = clamp(v-1, 0, 2)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// buildPayload assembles the wire request: single-system normalization,
// option mapping and vision content parts on the final user message.
func (c *OpenAIClient) buildPayload(req ChatRequest, stream bool) openAIChatPayload {
	system, rest := splitSystem(req.Messages)
	msgs := make([]openAIMessage, 0, len(rest)+1)
	if system != "" {
		msgs = append(msgs, openAIMessage{Role: RoleSystem, Content: system})
	}
	for _, m := range rest {
		msgs = append(msgs, openAIMessage{Role: m.Role, Content: m.Content})
	}
	if len(req.Images) > 0 && c.cfg.supportsVision {
		msgs = attachOpenAIImages(msgs, req.Images)
	}

	payload := openAIChatPayload{Model: req.Model, Messages: msgs, Stream: stream}
	opts := c.NormalizeOptions(req.Options)
	if v, ok := optFloat(opts, "temperature"); ok {
		payload.Temperature = &v
	}
	if v, ok := optFloat(opts, "top_p"); ok {
		payload.TopP = &v
	}
	if v, ok := optInt(opts, "max_tokens"); ok {
		payload.MaxTokens = &v
	}
	if v, ok := optFloat(opts, "frequency_penalty"); ok {
		payload.FrequencyPenalty = &v
	}
	return payload
}

// attachOpenAIImages rewrites the final user message as content parts with
// data-URI image_url entries.
func attachOpenAIImages(msgs []openAIMessage, images []string) []openAIMessage {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != RoleUser {
			continue
		}
		text, _ := msgs[i].Content.(string)
		parts := []openAIContentPart{{Type: "text", Text: text}}
		for _, img := range images {
			part := openAIContentPart{Type: "image_url"}
			part.ImageURL = &struct {
				URL string `json:"url"`
			}{URL: "data:image/jpeg;base64," + img}
			parts = append(parts, part)
		}
		msgs[i].Content = parts
		break
	}
	return msgs
}
