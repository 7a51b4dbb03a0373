package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/arnobt78/multimodel-chat/app"
	"github.com/arnobt78/multimodel-chat/handlers"
	"github.com/arnobt78/multimodel-chat/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.Config.Server.HandlerTimeout()))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var db handlers.HealthChecker
	if deps.DB != nil {
		db = deps.DB
	}
	var emitter handlers.EmitterStats
	if deps.Emitter != nil {
		emitter = deps.Emitter
	}
	health := handlers.NewHealthHandler(deps.Logger,
		handlers.DatabaseCheck(db),
		handlers.BackendsCheck(deps.Config.UsableBackends()),
		handlers.TelemetryCheck(emitter),
	)
	chat := handlers.NewChatHandler(deps.Chat, deps.Logger)
	providerList := handlers.NewProvidersHandler(deps.Orchestrator, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.MetricsProvider != nil {
		r.Handle("/metrics", deps.MetricsProvider.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Post("/chat", chat.HandleChat)
		r.Get("/providers", providerList.HandleList)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "endpoint not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
