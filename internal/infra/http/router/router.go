package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xavierca1/leadflow/internal/infra/http/handlers"
	"github.com/xavierca1/leadflow/internal/infra/http/middleware"
)

type Handlers struct {
	Monday *handlers.MondayWebhookHandler
	Meta   *handlers.MetaWebhookHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler
}

func New(h Handlers, corsOrigins []string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Secret"},
		MaxAge:         300,
	}))

	r.Get("/", handlers.Root)
	r.Get("/health", h.Health.Handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhook", func(r chi.Router) {
		r.Post("/monday", h.Monday.Handle)
		r.Get("/meta", h.Meta.Verify)
		r.Post("/meta", h.Meta.Handle)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/followups/run", h.Admin.RunFollowups)
		r.Post("/initial-messages/run", h.Admin.RunInitialMessages)
		r.Post("/leads/sync", h.Admin.SyncLeads)
	})

	return r
}
