package listing

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns listing router. There is no auth middleware: every mutation
// carries its own signed authorization in the body.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{slug}", h.Get)
	r.Put("/{slug}", h.Update)
	r.Delete("/{slug}", h.Delete)
	r.Post("/{slug}/secret", h.Secret)

	return r
}
