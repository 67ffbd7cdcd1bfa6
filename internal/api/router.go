package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/planforge/collabd/internal/collab"
)

// NewRouter builds the HTTP surface: health, websocket upgrade, and the
// read-only snapshot endpoint.
func NewRouter(registry *collab.Registry, wsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recovery)

	r.Get("/health", Health)
	r.Handle("/ws", wsHandler)

	sessionH := NewSessionHandler(registry)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/{id}/snapshot", sessionH.Snapshot)
	})

	return r
}
