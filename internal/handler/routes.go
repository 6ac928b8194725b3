package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// API groups the handlers mounted by the gateway.
type API struct {
	Health   *HealthHandler
	Sessions *SessionsHandler
	Chat     *ChatHandler
	Stream   *StreamHandler
}

// Mount registers the health endpoints on r and the /api/v1 routes behind mw.
func (a *API) Mount(r chi.Router, mw ...func(http.Handler) http.Handler) {
	// Health endpoints (no auth required)
	r.Get("/health", a.Health.Health)
	r.Get("/ready", a.Health.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw...)

		r.Post("/chat", a.Chat.Send)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", a.Sessions.List)
			r.Post("/", a.Sessions.Create)
			r.Get("/events", a.Stream.Sessions)
			r.Post("/refresh", a.Sessions.Refresh)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.Sessions.Get)
				r.Delete("/", a.Sessions.Delete)
				r.Post("/messages", a.Chat.SendToSession)
			})
		})
	})
}
