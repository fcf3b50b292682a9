package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.withTraceID)
	router.Use(h.withLogging)

	router.Get("/ping", h.ping)

	router.Group(func(r chi.Router) {
		r.Get("/api/v1/lookup", h.getLookup)
		r.Get("/api/v1/status", h.getStatus)
	})

	return router
}
