package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestModelsHandler_ListModels_ActiveProvider(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"models":[{"name":"llama3","size":4000000000},{"name":"mistral","size":4100000000}]}`)
	}))
	defer upstream.Close()

	registry := newTestRegistry(t)
	pointSeededProviderAt(t, registry, upstream.URL)
	h := NewModelsHandler(registry)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
	rr := httptest.NewRecorder()
	h.ListModels(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("len(models) = %d; want 2", len(resp.Data))
	}
	if resp.Provider != "ollama" {
		t.Errorf("provider = %q; want ollama", resp.Provider)
	}
}

func TestModelsHandler_ListModels_UnknownProviderID(t *testing.T) {
	t.Parallel()

	h := NewModelsHandler(newTestRegistry(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/models?provider_id=missing", nil)
	rr := httptest.NewRecorder()
	h.ListModels(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404", rr.Code)
	}
}

func TestModelsHandler_TestConnection_Candidate(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"llama3","size":1}]}`)
	}))
	defer upstream.Close()

	h := NewModelsHandler(newTestRegistry(t))

	body := strings.NewReader(fmt.Sprintf(`{"type":"ollama","url":%q}`, upstream.URL))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/test-connection", body)
	rr := httptest.NewRecorder()
	h.TestConnection(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK {
		t.Errorf("ok = false; message = %q", resp.Message)
	}
	if !strings.Contains(resp.Message, "1 model(s)") {
		t.Errorf("message = %q; want model count", resp.Message)
	}
}

func TestModelsHandler_TestConnection_FailureIsOKFalse(t *testing.T) {
	t.Parallel()

	h := NewModelsHandler(newTestRegistry(t))

	// Unreachable candidate: probe reports failure without an HTTP error.
	body := strings.NewReader(`{"type":"ollama","url":"http://127.0.0.1:1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/test-connection", body)
	rr := httptest.NewRecorder()
	h.TestConnection(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 with ok=false", rr.Code)
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OK {
		t.Error("ok = true; want false for unreachable upstream")
	}
}

func TestModelsHandler_TestConnection_MissingKeyRejected(t *testing.T) {
	t.Parallel()

	h := NewModelsHandler(newTestRegistry(t))

	body := strings.NewReader(`{"type":"anthropic"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/test-connection", body)
	rr := httptest.NewRecorder()
	h.TestConnection(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400 for key-requiring type without key", rr.Code)
	}
}
