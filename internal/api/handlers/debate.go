package handlers

import (
	"net/http"

	"github.com/yblis/nova/internal/domain/debate"
	"github.com/yblis/nova/internal/infra/llm"
)

// DebateHandler streams multi-model debates and persists the saved lineup.
type DebateHandler struct {
	orchestrator *debate.Orchestrator
	defaults     *debate.DefaultsStore
}

func NewDebateHandler(orchestrator *debate.Orchestrator, defaults *debate.DefaultsStore) *DebateHandler {
	return &DebateHandler{orchestrator: orchestrator, defaults: defaults}
}

type debateRequest struct {
	Mode         string               `json:"mode"` // "parallel" (default) or "sequential"
	Participants []debate.Participant `json:"participants"`
	Messages     []llm.Message        `json:"messages,omitempty"`
	UserMessage  string               `json:"user_message,omitempty"`
	History      []llm.Message        `json:"history,omitempty"`
	Rounds       int                  `json:"rounds,omitempty"`
	SystemPrompt string               `json:"system_prompt,omitempty"`
	Options      map[string]any       `json:"options,omitempty"`
}

// lastUserContent returns the content of the most recent user message, used
// as the debate topic for persona synthesis in parallel mode.
func lastUserContent(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// Stream handles POST /api/v1/debate/stream. Every frame is one participant
// chunk; per-participant failures arrive in-band and never abort the others.
func (h *DebateHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req debateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Participants) < 2 || len(req.Participants) > 4 {
		writeError(w, http.StatusBadRequest, "a debate requires between 2 and 4 participants")
		return
	}

	var (
		stream <-chan debate.Chunk
		err    error
	)
	switch req.Mode {
	case "sequential":
		if req.UserMessage == "" {
			writeError(w, http.StatusBadRequest, "user_message is required in sequential mode")
			return
		}
		rounds := req.Rounds
		if rounds <= 0 {
			rounds = 1
		}
		debate.ApplyPersonas(req.Participants, req.SystemPrompt, req.UserMessage)
		stream, err = h.orchestrator.Sequential(r.Context(), req.Participants, req.UserMessage, req.History, rounds, req.Options)
	case "", "parallel":
		if len(req.Messages) == 0 {
			writeError(w, http.StatusBadRequest, "messages are required in parallel mode")
			return
		}
		debate.ApplyPersonas(req.Participants, req.SystemPrompt, lastUserContent(req.Messages))
		stream, err = h.orchestrator.Parallel(r.Context(), req.Participants, req.Messages, req.Options)
	default:
		writeError(w, http.StatusBadRequest, "mode must be parallel or sequential")
		return
	}
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
			"participant_id": chunk.ParticipantID,
			"name":           chunk.Name,
			"color":          chunk.Color,
			"content":        chunk.Content,
			"thinking":       chunk.Thinking,
			"round":          chunk.Round,
			"start":          chunk.Start,
			"done":           chunk.Done,
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

// GetDefaults handles GET /api/v1/debate/defaults
func (h *DebateHandler) GetDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"participants": h.defaults.Load()})
}

// SaveDefaults handles PUT /api/v1/debate/defaults
func (h *DebateHandler) SaveDefaults(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Participants []debate.Participant `json:"participants"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	for i := range req.Participants {
		req.Participants[i].Normalize()
	}
	if err := h.defaults.Save(req.Participants); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save debate defaults")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": req.Participants})
}
