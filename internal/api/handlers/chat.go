package handlers

import (
	"net/http"

	"github.com/yblis/nova/internal/domain/provider"
	"github.com/yblis/nova/internal/infra/llm"
)

// ChatHandler proxies chat completions to the configured provider, in both
// buffered and SSE-streaming form.
type ChatHandler struct {
	registry *provider.Registry
	factory  func(llm.Descriptor) (llm.Client, error)
}

func NewChatHandler(registry *provider.Registry) *ChatHandler {
	return &ChatHandler{registry: registry, factory: llm.ForProvider}
}

type chatRequest struct {
	ProviderID string         `json:"provider_id,omitempty"`
	Model      string         `json:"model,omitempty"`
	Messages   []llm.Message  `json:"messages"`
	Images     []string       `json:"images,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

// resolve builds the adapter and the normalized request, falling back to the
// provider's default model when the request names none.
func (h *ChatHandler) resolve(req chatRequest) (llm.Client, llm.ChatRequest, error) {
	var (
		desc llm.Descriptor
		err  error
	)
	if req.ProviderID != "" {
		desc, err = h.registry.Descriptor(req.ProviderID)
	} else {
		desc, err = h.registry.Active()
	}
	if err != nil {
		return nil, llm.ChatRequest{}, err
	}
	client, err := h.factory(desc)
	if err != nil {
		return nil, llm.ChatRequest{}, err
	}

	model := req.Model
	if model == "" {
		model = desc.DefaultModel
	}
	if model == "" {
		model = client.DefaultModel()
	}
	return client, llm.ChatRequest{
		Model:    model,
		Messages: req.Messages,
		Images:   req.Images,
		Options:  req.Options,
	}, nil
}

// Chat handles POST /api/v1/chat — one buffered completion.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	client, chatReq, err := h.resolve(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	chunk, err := client.Chat(r.Context(), chatReq)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":     chunk.Role,
		"content":  chunk.Content,
		"thinking": chunk.Thinking,
		"model":    chatReq.Model,
		"provider": client.Provider(),
	})
}

// ChatStream handles POST /api/v1/chat/stream — SSE frames, one per chunk.
// Upstream failures after the stream opens arrive in-band as a final frame
// carrying error/error_kind; the HTTP status is already committed by then.
func (h *ChatHandler) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	client, chatReq, err := h.resolve(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	stream, err := client.ChatStream(r.Context(), chatReq)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	send, ok := sseStream(w)
	if !ok {
		return
	}
	for chunk := range stream {
		frame := map[string]any{
			"content":  chunk.Content,
			"thinking": chunk.Thinking,
			"done":     chunk.Done,
		}
		if chunk.Err != nil {
			frame["error"] = chunk.Err.UserMessage()
			frame["error_kind"] = string(chunk.Err.Kind)
		}
		if err := send(frame); err != nil {
			return
		}
	}
}
