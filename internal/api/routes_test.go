// Wiring tests for NewRouter: routes registered, services reachable.
package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yblis/nova/internal/domain/debate"
	"github.com/yblis/nova/internal/domain/history"
	"github.com/yblis/nova/internal/domain/provider"
	"github.com/yblis/nova/internal/infra/sqlite"
	"github.com/yblis/nova/pkg/secrets"
)

// newTestDeps builds a fully wired Deps over temp storage.
func newTestDeps(t *testing.T) Deps {
	t.Helper()
	dir := t.TempDir()

	t.Setenv("NOVA_ENCRYPTION_KEY", "")
	sealer, err := secrets.FromEnv()
	if err != nil {
		t.Fatalf("secrets.FromEnv error = %v", err)
	}
	registry, err := provider.NewRegistry(filepath.Join(dir, "providers.json"), sealer)
	if err != nil {
		t.Fatalf("provider.NewRegistry error = %v", err)
	}

	db, err := sqlite.NewDB(filepath.Join(dir, "history.sqlite"))
	if err != nil {
		t.Fatalf("sqlite.NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("sqlite.MigrateUp error = %v", err)
	}

	return Deps{
		Registry:       registry,
		History:        history.NewStore(db),
		Orchestrator:   debate.NewOrchestrator(registry),
		DebateDefaults: debate.NewDefaultsStore(filepath.Join(dir, "debate_config.json")),
	}
}

// TestNewRouter_HealthEndpoint verifies that NewRouter registers /health.
func TestNewRouter_HealthEndpoint(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("expected body to contain 'ok', got %q", w.Body.String())
	}
}

// TestNewRouter_ProvidersSeeded verifies the registry wiring: a fresh install
// answers GET /api/v1/providers with the seeded local Ollama entry.
func TestNewRouter_ProvidersSeeded(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /api/v1/providers, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"type":"ollama"`) {
		t.Errorf("expected seeded ollama provider, got %q", w.Body.String())
	}
}

// TestNewRouter_ProviderTypesEndpoint verifies the type catalog route.
func TestNewRouter_ProviderTypesEndpoint(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/types", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /api/v1/providers/types, got %d", w.Code)
	}
	for _, want := range []string{`"anthropic"`, `"gemini"`, `"cohere"`} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("expected type catalog to contain %s", want)
		}
	}
}

// TestNewRouter_HistoryRoundTrip exercises session create + list through HTTP.
func TestNewRouter_HistoryRoundTrip(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	create := httptest.NewRequest(http.MethodPost, "/api/v1/history/sessions",
		strings.NewReader(`{"model":"llama3","title":"wiring test"}`))
	create.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, create)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating session, got %d: %s", w.Code, w.Body.String())
	}

	list := httptest.NewRequest(http.MethodGet, "/api/v1/history/sessions", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, list)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 listing sessions, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "wiring test") {
		t.Errorf("expected created session in list, got %q", w.Body.String())
	}
}

// TestNewRouter_DebateDefaultsEndpoint verifies the defaults store wiring.
func TestNewRouter_DebateDefaultsEndpoint(t *testing.T) {
	router := NewRouter(newTestDeps(t))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/debate/defaults", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /api/v1/debate/defaults, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "participants") {
		t.Errorf("expected participants envelope, got %q", w.Body.String())
	}
}
