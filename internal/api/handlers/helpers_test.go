package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/yblis/nova/internal/domain/history"
	"github.com/yblis/nova/internal/domain/provider"
	"github.com/yblis/nova/internal/infra/sqlite"
	"github.com/yblis/nova/pkg/secrets"
)

// newTestRegistry builds a registry over a temp providers.json. A fresh file
// is seeded with the default local Ollama provider.
func newTestRegistry(t *testing.T) *provider.Registry {
	t.Helper()
	sealer, err := secrets.NewSealer(make([]byte, 32))
	if err != nil {
		t.Fatalf("secrets.NewSealer error = %v", err)
	}
	registry, err := provider.NewRegistry(filepath.Join(t.TempDir(), "providers.json"), sealer)
	if err != nil {
		t.Fatalf("provider.NewRegistry error = %v", err)
	}
	return registry
}

// newTestHistory builds a migrated history store over a temp SQLite file.
func newTestHistory(t *testing.T) *history.Store {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatalf("sqlite.NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("sqlite.MigrateUp error = %v", err)
	}
	return history.NewStore(db)
}

// withURLParam injects a chi route parameter so handlers can be called
// directly without mounting a router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
