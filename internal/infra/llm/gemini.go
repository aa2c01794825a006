// Gemini adapter. The generateContent API structures every turn as a
// Content{role, parts} object where the assistant role is spelled "model",
// the leading system message becomes a top-level system_instruction (never a
// content turn), and images ride as inline_data parts with the MIME type
// sniffed from base64 magic bytes. Streaming uses streamGenerateContent with
// SSE framing.
package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com"

var geminiModels = []ModelInfo{
	{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", Description: "Most capable, 2M token context"},
	{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", Description: "Fast and versatile"},
	{ID: "gemini-1.5-flash-8b", Name: "Gemini 1.5 Flash 8B", Description: "Light and affordable"},
	{ID: "gemini-2.0-flash-exp", Name: "Gemini 2.0 Flash (Exp)", Description: "Experimental next generation"},
	{ID: "gemini-pro", Name: "Gemini Pro", Description: "Classic stable version"},
}

// GeminiClient implements Client against the generateContent API.
type GeminiClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// NewGeminiClient creates a Gemini adapter. baseURL is overridable for
// tests; empty means the public endpoint.
func NewGeminiClient(baseURL, apiKey string) *GeminiClient {
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &GeminiClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, hc: newHTTPClient()}
}

type geminiPart struct {
	Text       string `json:"text,omitempty"`
	InlineData *struct {
		MIMEType string `json:"mime_type"`
		Data     string `json:"data"`
	} `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiPayload struct {
	SystemInstruction *geminiContent          `json:"system_instruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

type geminiModelList struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		Description                string   `json:"description"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

func (c *GeminiClient) Provider() string        { return TypeGemini }
func (c *GeminiClient) SupportsVision() bool    { return true }
func (c *GeminiClient) SupportsStreaming() bool { return true }
func (c *GeminiClient) DefaultModel() string    { return "gemini-1.5-flash" }

// ListModels asks the API for models supporting generateContent, falling
// back to the static catalog on any failure (auth included: the original
// behavior here is fully degrade-first, and the static list is always valid).
func (c *GeminiClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	url := fmt.Sprintf("%s/v1beta/models?key=%s", c.baseURL, c.apiKey)
	status, body, err := doJSON(ctx, c.hc, http.MethodGet, url, nil, nil)
	if err != nil || status != http.StatusOK {
		return staticGeminiModels(), nil
	}
	var list geminiModelList
	if decodeErr := json.Unmarshal(body, &list); decodeErr != nil {
		return staticGeminiModels(), nil
	}
	models := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		if !contains(m.SupportedGenerationMethods, "generateContent") {
			continue
		}
		models = append(models, ModelInfo{
			ID:          strings.TrimPrefix(m.Name, "models/"),
			Name:        m.DisplayName,
			Description: m.Description,
		})
	}
	if len(models) == 0 {
		return staticGeminiModels(), nil
	}
	return models, nil
}

func staticGeminiModels() []ModelInfo {
	out := make([]ModelInfo, len(geminiModels))
	copy(out, geminiModels)
	return out
}

// Chat performs one non-streaming generateContent call.
func (c *GeminiClient) Chat(ctx context.Context, req ChatRequest) (ChatChunk, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, req.Model, c.apiKey)
	status, body, err := doJSON(ctx, c.hc, http.MethodPost, url, nil, c.buildPayload(req))
	if err != nil {
		return ChatChunk{}, ClassifyTransport(err, TypeGemini)
	}
	if status != http.StatusOK {
		return ChatChunk{}, ClassifyGemini(vendorMessage(body))
	}
	var parsed geminiResponse
	if decodeErr := json.Unmarshal(body, &parsed); decodeErr != nil {
		return ChatChunk{}, NewError(fmt.Sprintf("decode generateContent response: %v", decodeErr), TypeGemini, KindUnknown)
	}
	return ChatChunk{Role: RoleAssistant, Content: geminiText(parsed), Done: true}, nil
}

// ChatStream performs a streaming streamGenerateContent call (SSE framing).
// The wire carries no done flag, so the terminal chunk is synthesized when
// the event stream ends cleanly.
func (c *GeminiClient) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, req.Model, c.apiKey)
	resp, _, errBody, err := openStream(ctx, c.hc, url, nil, c.buildPayload(req))
	if err != nil {
		return nil, ClassifyTransport(err, TypeGemini)
	}
	if resp == nil {
		return nil, ClassifyGemini(vendorMessage(errBody))
	}

	ch := make(chan ChatChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close() //nolint:errcheck

		sawEnd := false
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event geminiResponse
			if decodeErr := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); decodeErr != nil {
				continue
			}
			text := geminiText(event)
			if text != "" {
				if !sendChunk(ctx, ch, ChatChunk{Role: RoleAssistant, Content: text}) {
					return
				}
			}
			if len(event.Candidates) > 0 && event.Candidates[0].FinishReason != "" {
				sawEnd = true
			}
		}
		if scanErr := scanner.Err(); scanErr != nil {
			sendChunk(ctx, ch, errChunk(ClassifyTransport(scanErr, TypeGemini)))
			return
		}
		if !sawEnd {
			sendChunk(ctx, ch, errChunk(NewError("stream ended without finish reason", TypeGemini, KindConnection)))
			return
		}
		sendChunk(ctx, ch, doneChunk())
	}()
	return ch, nil
}

// TestConnection probes by listing models over the network.
func (c *GeminiClient) TestConnection(ctx context.Context) (bool, string) {
	if c.apiKey == "" {
		return false, "API key missing"
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	url := fmt.Sprintf("%s/v1beta/models?key=%s", c.baseURL, c.apiKey)
	status, body, err := doJSON(probeCtx, c.hc, http.MethodGet, url, nil, nil)
	if err != nil {
		return false, ClassifyTransport(err, TypeGemini).UserMessage()
	}
	if status != http.StatusOK {
		return false, ClassifyGemini(vendorMessage(body)).UserMessage()
	}
	return true, "Connected to Gemini"
}

// NormalizeOptions maps to the generation-config names; num_ctx stands in
// for max_output_tokens, capped at 8192. Already vendor-shaped keys pass
// through so double normalization is a no-op.
func (c *GeminiClient) NormalizeOptions(opts map[string]any) map[string]any {
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
	if v, ok := optInt(opts, "max_output_tokens"); ok {
		out["max_output_tokens"] = v
	} else if v, ok := optInt(opts, "max_tokens"); ok {
		out["max_output_tokens"] = v
	} else if v, ok := optInt(opts, "num_ctx"); ok {
		out["max_output_tokens"] = capInt(v, 8192)
	}
	return out
}

// buildPayload converts turns to Content objects (assistant → "model"),
// hoists the first system message into system_instruction and appends image
// parts to the final user turn.
func (c *GeminiClient) buildPayload(req ChatRequest) geminiPayload {
	system, rest := splitSystem(req.Messages)
	contents := make([]geminiContent, 0, len(rest))
	for _, m := range rest {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if len(req.Images) > 0 {
		for i := len(contents) - 1; i >= 0; i-- {
			if contents[i].Role != "user" {
				continue
			}
			for _, img := range req.Images {
				part := geminiPart{}
				part.InlineData = &struct {
					MIMEType string `json:"mime_type"`
					Data     string `json:"data"`
				}{MIMEType: sniffImageMIME(img), Data: img}
				contents[i].Parts = append(contents[i].Parts, part)
			}
			break
		}
	}

	payload := geminiPayload{Contents: contents}
	if system != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	opts := c.NormalizeOptions(req.Options)
	if len(opts) > 0 {
		cfg := &geminiGenerationConfig{}
		if v, ok := optFloat(opts, "temperature"); ok {
			cfg.Temperature = &v
		}
		if v, ok := optFloat(opts, "top_p"); ok {
			cfg.TopP = &v
		}
		if v, ok := optInt(opts, "top_k"); ok {
			cfg.TopK = &v
		}
		if v, ok := optInt(opts, "max_output_tokens"); ok {
			cfg.MaxOutputTokens = &v
		}
		payload.GenerationConfig = cfg
	}
	return payload
}

func geminiText(r geminiResponse) string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// sniffImageMIME guesses the image MIME type from the base64 prefix, which
// encodes the file's magic bytes. Unknown payloads default to JPEG.
func sniffImageMIME(b64 string) string {
	switch {
	case strings.HasPrefix(b64, "/9j/"):
		return "image/jpeg"
	case strings.HasPrefix(b64, "iVBOR"):
		return "image/png"
	case strings.HasPrefix(b64, "R0lGOD"):
		return "image/gif"
	case strings.HasPrefix(b64, "UklGR"):
		return "image/webp"
	}
	return "image/jpeg"
}
