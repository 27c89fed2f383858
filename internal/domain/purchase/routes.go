package purchase

import (
	"github.com/go-chi/chi/v5"
)

// Routes returns the reveal/history router. The purchase endpoint itself is
// mounted under the listings path in main.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/reveal", h.Reveal)
	r.Get("/transactions", h.History)

	return r
}
