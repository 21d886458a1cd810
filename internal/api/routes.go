package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the HTTP routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Hub-Signature-256"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HandleHealth)

	// Meta webhook: GET is the subscription handshake, POST carries
	// inbound messages.
	r.Get("/webhook", h.HandleWebhookVerify)
	r.Post("/webhook", h.HandleWebhookEvent)

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", h.HandleJobIntake)
		r.Get("/metrics", h.HandleMetrics)
	})

	return r
}
