// Ollama native-protocol adapter. Talks to the Ollama REST API directly:
//   - GET  /api/tags — installed models (doubles as the liveness probe)
//   - POST /api/chat — chat completion, streaming as newline-delimited JSON
//
// Messages travel in native shape (system turns stay inline); images are a
// raw base64 list attached to the last user message; options map 1:1.
package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// OllamaClient implements Client against an Ollama server.
type OllamaClient struct {
	baseURL      string
	defaultModel string
	hc           *http.Client
}

// NewOllamaClient creates an adapter for the Ollama server at baseURL.
func NewOllamaClient(baseURL, defaultModel string) *OllamaClient {
	return &OllamaClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		hc:           newHTTPClient(),
	}
}

type ollamaMessage struct {
	Role     string   `json:"role"`
	Content  string   `json:"content"`
	Thinking string   `json:"thinking,omitempty"`
	Images   []string `json:"images,omitempty"`
}

type ollamaChatPayload struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatLine struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"models"`
}

func (c *OllamaClient) Provider() string        { return TypeOllama }
func (c *OllamaClient) SupportsVision() bool    { return true }
func (c *OllamaClient) SupportsStreaming() bool { return true }
func (c *OllamaClient) DefaultModel() string    { return c.defaultModel }

// ListModels lists installed models via /api/tags.
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	status, body, err := doJSON(ctx, c.hc, http.MethodGet, c.baseURL+"/api/tags", nil, nil)
	if err != nil {
		return c.fallbackModels(ClassifyTransport(err, TypeOllama))
	}
	if status != http.StatusOK {
		return c.fallbackModels(ClassifyHTTP(status, vendorMessage(body), TypeOllama))
	}
	var tags ollamaTagsResponse
	if decodeErr := json.Unmarshal(body, &tags); decodeErr != nil {
		return nil, NewError(fmt.Sprintf("decode tags response: %v", decodeErr), TypeOllama, KindUnknown)
	}
	models := make([]ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, ModelInfo{
			ID:          m.Name,
			Name:        m.Name,
			Description: fmt.Sprintf("Size: %s", formatSize(m.Size)),
		})
	}
	return models, nil
}

// fallbackModels implements the degrade-instead-of-fail policy for model
// listing. Auth failures still propagate.
func (c *OllamaClient) fallbackModels(e *Error) ([]ModelInfo, error) {
	if e.Kind == KindAuth {
		return nil, e
	}
	slog.Warn("ollama model listing failed, using fallback", "err", e.Message)
	if c.defaultModel != "" {
		return []ModelInfo{{ID: c.defaultModel, Name: c.defaultModel}}, nil
	}
	return []ModelInfo{}, nil
}

// Chat performs a single non-streaming completion via /api/chat.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (ChatChunk, error) {
	payload := ollamaChatPayload{
		Model:    req.Model,
		Messages: c.prepareMessages(req),
		Stream:   false,
		Options:  c.NormalizeOptions(req.Options),
	}
	status, body, err := doJSON(ctx, c.hc, http.MethodPost, c.baseURL+"/api/chat", nil, payload)
	if err != nil {
		return ChatChunk{}, ClassifyTransport(err, TypeOllama)
	}
	if status != http.StatusOK {
		if status == http.StatusNotFound {
			return ChatChunk{}, &Error{
				Message: fmt.Sprintf("model %q not found", req.Model), Provider: TypeOllama,
				Kind: KindModelNotFound, HTTPStatus: status,
			}
		}
		return ChatChunk{}, ClassifyHTTP(status, vendorMessage(body), TypeOllama)
	}
	var line ollamaChatLine
	if decodeErr := json.Unmarshal(body, &line); decodeErr != nil {
		return ChatChunk{}, NewError(fmt.Sprintf("decode chat response: %v", decodeErr), TypeOllama, KindUnknown)
	}
	return ChatChunk{Role: RoleAssistant, Content: line.Message.Content, Thinking: line.Message.Thinking, Done: true}, nil
}

// ChatStream performs a streaming completion. Ollama emits one JSON object
// per line, the last one carrying done=true.
func (c *OllamaClient) ChatStream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error) {
	payload := ollamaChatPayload{
		Model:    req.Model,
		Messages: c.prepareMessages(req),
		Stream:   true,
		Options:  c.NormalizeOptions(req.Options),
	}
	resp, status, errBody, err := openStream(ctx, c.hc, c.baseURL+"/api/chat", nil, payload)
	if err != nil {
		return nil, ClassifyTransport(err, TypeOllama)
	}
	if resp == nil {
		if status == http.StatusNotFound {
			return nil, &Error{
				Message: fmt.Sprintf("model %q not found", req.Model), Provider: TypeOllama,
				Kind: KindModelNotFound, HTTPStatus: status,
			}
		}
		return nil, ClassifyHTTP(status, vendorMessage(errBody), TypeOllama)
	}

	ch := make(chan ChatChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close() //nolint:errcheck

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}
			var line ollamaChatLine
			if decodeErr := json.Unmarshal(raw, &line); decodeErr != nil {
				continue
			}
			chunk := ChatChunk{
				Role:     RoleAssistant,
				Content:  line.Message.Content,
				Thinking: line.Message.Thinking,
				Done:     line.Done,
			}
			if !sendChunk(ctx, ch, chunk) {
				return
			}
			if line.Done {
				return
			}
		}
		// The vendor never sent done=true: surface the interruption.
		if scanErr := scanner.Err(); scanErr != nil {
			sendChunk(ctx, ch, errChunk(ClassifyTransport(scanErr, TypeOllama)))
			return
		}
		sendChunk(ctx, ch, errChunk(NewError("stream ended without terminal chunk", TypeOllama, KindConnection)))
	}()
	return ch, nil
}

// TestConnection probes /api/tags.
func (c *OllamaClient) TestConnection(ctx context.Context) (bool, string) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	status, body, err := doJSON(probeCtx, c.hc, http.MethodGet, c.baseURL+"/api/tags", nil, nil)
	if err != nil {
		return false, fmt.Sprintf("Cannot connect to %s", c.baseURL)
	}
	if status != http.StatusOK {
		return false, fmt.Sprintf("HTTP error: %d", status)
	}
	var tags ollamaTagsResponse
	if decodeErr := json.Unmarshal(body, &tags); decodeErr != nil {
		return false, fmt.Sprintf("Error: %v", decodeErr)
	}
	return true, fmt.Sprintf("Connected - %d model(s) available", len(tags.Models))
}

// NormalizeOptions: Ollama uses the normalized names natively.
func (c *OllamaClient) NormalizeOptions(opts map[string]any) map[string]any {
	if len(opts) == 0 {
		return nil
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
	if v, ok := optInt(opts, "num_ctx"); ok {
		out["num_ctx"] = v
	}
	if v, ok := optFloat(opts, "repeat_penalty"); ok {
		out["repeat_penalty"] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// prepareMessages keeps the native message shape but enforces the
// single-system contract and attaches images to the last user turn.
func (c *OllamaClient) prepareMessages(req ChatRequest) []ollamaMessage {
	system, rest := splitSystem(req.Messages)
	msgs := make([]ollamaMessage, 0, len(rest)+1)
	if system != "" {
		msgs = append(msgs, ollamaMessage{Role: RoleSystem, Content: system})
	}
	for _, m := range rest {
		msgs = append(msgs, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	if len(req.Images) > 0 {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == RoleUser {
				msgs[i].Images = req.Images
				break
			}
		}
	}
	return msgs
}

// formatSize renders a byte count as a human-readable string.
func formatSize(size int64) string {
	val := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if val < 1024 {
			return fmt.Sprintf("%.1f %s", val, unit)
		}
		val /= 1024
	}
	return fmt.Sprintf("%.1f PB", val)
}
