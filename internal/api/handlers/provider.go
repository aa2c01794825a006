package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/yblis/nova/internal/domain/provider"
	"github.com/yblis/nova/internal/infra/llm"
)

// ProviderHandler exposes CRUD over the provider registry plus the static
// provider-type catalog the UI builds its forms from.
type ProviderHandler struct{ registry *provider.Registry }

func NewProviderHandler(registry *provider.Registry) *ProviderHandler {
	return &ProviderHandler{registry: registry}
}

// ListProviders handles GET /api/v1/providers
func (h *ProviderHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data":               h.registry.List(),
		"active_provider_id": h.registry.ActiveID(),
	})
}

// CreateProvider handles POST /api/v1/providers
func (h *ProviderHandler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var req provider.AddInput
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "name and type are required")
		return
	}
	out, err := h.registry.Add(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// GetProvider handles GET /api/v1/providers/{id}
func (h *ProviderHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	out, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateProvider handles PUT /api/v1/providers/{id}
func (h *ProviderHandler) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	var req provider.UpdateInput
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := h.registry.Update(chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteProvider handles DELETE /api/v1/providers/{id}
func (h *ProviderHandler) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ActivateProvider handles POST /api/v1/providers/{id}/activate
func (h *ProviderHandler) ActivateProvider(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.SetActive(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_provider_id": id})
}

// SetDefaultModel handles PUT /api/v1/providers/{id}/default-model
func (h *ProviderHandler) SetDefaultModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	if err := h.registry.SetDefaultModel(chi.URLParam(r, "id"), req.Model); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"default_model": req.Model})
}

// ListTypes handles GET /api/v1/providers/types
func (h *ProviderHandler) ListTypes(w http.ResponseWriter, r *http.Request) {
	type typeEntry struct {
		Type string `json:"type"`
		llm.TypeMeta
	}
	names := llm.Types()
	sort.Strings(names)

	entries := make([]typeEntry, 0, len(names))
	for _, name := range names {
		meta, _ := llm.MetaFor(name)
		entries = append(entries, typeEntry{Type: name, TypeMeta: meta})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
