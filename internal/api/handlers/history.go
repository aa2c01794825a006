package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yblis/nova/internal/domain/history"
)

// HistoryHandler exposes the persisted chat sessions.
type HistoryHandler struct{ store *history.Store }

func NewHistoryHandler(store *history.Store) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// ListSessions handles GET /api/v1/history/sessions
func (h *HistoryHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": sessions})
}

// CreateSession handles POST /api/v1/history/sessions
func (h *HistoryHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderID string `json:"provider_id"`
		Model      string `json:"model"`
		Title      string `json:"title"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := h.store.CreateSession(r.Context(), req.ProviderID, req.Model, req.Title)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /api/v1/history/sessions/{id}
func (h *HistoryHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// UpdateSession handles PUT /api/v1/history/sessions/{id}
func (h *HistoryHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req history.SessionUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.UpdateSession(r.Context(), id, req); err != nil {
		writeServiceError(w, err)
		return
	}
	sess, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// TogglePin handles POST /api/v1/history/sessions/{id}/pin
func (h *HistoryHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	pinned, err := h.store.TogglePin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_pinned": pinned})
}

// AddMessage handles POST /api/v1/history/sessions/{id}/messages
func (h *HistoryHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	var req history.Message
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Role == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "role and content are required")
		return
	}
	msg, err := h.store.AddMessage(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// DeleteSession handles DELETE /api/v1/history/sessions/{id}
func (h *HistoryHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// DeleteSessions handles POST /api/v1/history/sessions/bulk-delete
func (h *HistoryHandler) DeleteSessions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionIDs []string `json:"session_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := h.store.DeleteSessions(r.Context(), req.SessionIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// DeleteAllSessions handles DELETE /api/v1/history/sessions
func (h *HistoryHandler) DeleteAllSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.DeleteAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}
