// Package rest exposes the marketplace over HTTP: JSON endpoints for the
// mini-app and HTML fragments drawn by the view renderer.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/adapter/rest/middleware"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/logger"
	"github.com/OWOUWUEWE/Hot-Wheels-Elite/internal/platform/metrics"
)

// NewRouter mounts every route of the handler. m may be nil.
func NewRouter(h *Handler, tokens *middleware.TokenManager, log *logger.Logger, m *metrics.MetricsManager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing("hot-wheels-elite.http"))
	r.Use(middleware.Logger(log, m))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/telegram", h.AuthTelegram)
		r.Post("/auth/demo", h.AuthDemo)

		r.Get("/products", h.ListProducts)
		r.Get("/products/search", h.SearchProducts)
		r.Get("/products/{id}", h.GetProduct)
		r.Get("/products/{id}/contact", h.ContactSeller)
		r.Get("/users/{id}/products", h.UserProducts)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(tokens, log))

			r.Post("/auth/logout", h.Logout)
			r.Get("/me", h.GetMe)
			r.Put("/me", h.UpdateMe)

			r.Post("/products", h.PublishProduct)
			r.Patch("/products/{id}", h.UpdateProduct)
			r.Delete("/products/{id}", h.DeleteProduct)

			r.Get("/favorites", h.ListFavorites)
			r.Post("/favorites/{productId}", h.ToggleFavorite)
		})
	})

	r.Route("/view", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(tokens))

		r.Get("/home", h.ViewHome)
		r.Get("/search", h.ViewSearch)
		r.Get("/favorites", h.ViewFavorites)
		r.Get("/my", h.ViewMy)
		r.Get("/products/{id}", h.ViewProduct)
	})
	return r
}
