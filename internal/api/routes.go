// Route registration and go-chi router setup.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yblis/nova/internal/api/handlers"
	"github.com/yblis/nova/internal/domain/debate"
	"github.com/yblis/nova/internal/domain/history"
	"github.com/yblis/nova/internal/domain/provider"
	"github.com/yblis/nova/internal/version"
)

// Deps carries the services the router wires into handlers.
type Deps struct {
	Registry       *provider.Registry
	History        *history.Store
	Orchestrator   *debate.Orchestrator
	DebateDefaults *debate.DefaultsStore
}

// NewRouter creates and configures a chi router with all routes.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check — used by load balancers and health probes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","version":"` + version.Version + `"}`)) //nolint:errcheck
	})

	providerHandler := handlers.NewProviderHandler(deps.Registry)
	modelsHandler := handlers.NewModelsHandler(deps.Registry)
	chatHandler := handlers.NewChatHandler(deps.Registry)
	debateHandler := handlers.NewDebateHandler(deps.Orchestrator, deps.DebateDefaults)
	historyHandler := handlers.NewHistoryHandler(deps.History)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/providers", func(r chi.Router) {
			r.Get("/", providerHandler.ListProviders)    // GET /api/v1/providers
			r.Post("/", providerHandler.CreateProvider)  // POST /api/v1/providers
			r.Get("/types", providerHandler.ListTypes)   // GET /api/v1/providers/types
			r.Get("/{id}", providerHandler.GetProvider)  // GET /api/v1/providers/{id}
			r.Put("/{id}", providerHandler.UpdateProvider)
			r.Delete("/{id}", providerHandler.DeleteProvider)
			r.Post("/{id}/activate", providerHandler.ActivateProvider)
			r.Put("/{id}/default-model", providerHandler.SetDefaultModel)
		})

		r.Get("/models", modelsHandler.ListModels)           // GET /api/v1/models
		r.Post("/test-connection", modelsHandler.TestConnection)

		r.Post("/chat", chatHandler.Chat)                // POST /api/v1/chat
		r.Post("/chat/stream", chatHandler.ChatStream)   // POST /api/v1/chat/stream

		r.Route("/debate", func(r chi.Router) {
			r.Post("/stream", debateHandler.Stream)      // POST /api/v1/debate/stream
			r.Get("/defaults", debateHandler.GetDefaults)
			r.Put("/defaults", debateHandler.SaveDefaults)
		})

		r.Route("/history/sessions", func(r chi.Router) {
			r.Get("/", historyHandler.ListSessions)
			r.Post("/", historyHandler.CreateSession)
			r.Delete("/", historyHandler.DeleteAllSessions)
			r.Post("/bulk-delete", historyHandler.DeleteSessions)
			r.Get("/{id}", historyHandler.GetSession)
			r.Put("/{id}", historyHandler.UpdateSession)
			r.Delete("/{id}", historyHandler.DeleteSession)
			r.Post("/{id}/pin", historyHandler.TogglePin)
			r.Post("/{id}/messages", historyHandler.AddMessage)
		})
	})

	return r
}
