package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the chat facade routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Post("/chat", h.HandleChat)
	r.Post("/chat/cancel", h.HandleCancel)
	r.Get("/events", h.HandleEvents)
	r.Post("/upload", h.HandleUpload)
	r.Delete("/pricing/{id}", h.HandleDeletePricing)
	r.Get("/static/{id}", h.HandleStatic)
	r.Get("/health", h.HandleHealth)
}
