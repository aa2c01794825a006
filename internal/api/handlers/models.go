package handlers

import (
	"net/http"

	"github.com/yblis/nova/internal/domain/provider"
	"github.com/yblis/nova/internal/infra/llm"
)

// ModelsHandler serves model discovery and connection probes against a
// configured provider (the active one unless ?provider_id= says otherwise).
type ModelsHandler struct {
	registry *provider.Registry
	factory  func(llm.Descriptor) (llm.Client, error)
}

func NewModelsHandler(registry *provider.Registry) *ModelsHandler {
	return &ModelsHandler{registry: registry, factory: llm.ForProvider}
}

// resolveClient builds an adapter for the requested provider.
func (h *ModelsHandler) resolveClient(r *http.Request) (llm.Client, error) {
	var (
		desc llm.Descriptor
		err  error
	)
	if id := r.URL.Query().Get("provider_id"); id != "" {
		desc, err = h.registry.Descriptor(id)
	} else {
		desc, err = h.registry.Active()
	}
	if err != nil {
		return nil, err
	}
	return h.factory(desc)
}

// ListModels handles GET /api/v1/models[?provider_id=...]
func (h *ModelsHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	client, err := h.resolveClient(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	models, err := client.ListModels(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":     models,
		"provider": client.Provider(),
	})
}

// TestConnection handles POST /api/v1/test-connection.
// With a JSON body it probes an unsaved candidate configuration; without one
// it probes the active (or ?provider_id=) provider. The probe itself never
// errors: failures come back as {ok:false, message}.
func (h *ModelsHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var client llm.Client

	if r.ContentLength > 0 {
		var req struct {
			Type         string            `json:"type"`
			URL          string            `json:"url"`
			APIKey       string            `json:"api_key"`
			ExtraHeaders map[string]string `json:"extra_headers"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := h.factory(llm.Descriptor{
			Type: req.Type, URL: req.URL,
			Credential: req.APIKey, ExtraHeaders: req.ExtraHeaders,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		client = c
	} else {
		c, err := h.resolveClient(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		client = c
	}

	ok, message := client.TestConnection(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       ok,
		"message":  message,
		"provider": client.Provider(),
	})
}
