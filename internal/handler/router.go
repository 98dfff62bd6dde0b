package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/storefront-state/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса состояния витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Recovery(h.logger))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/ping", h.Ping)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/sync", h.SyncCart)
			r.Post("/items", h.AddCartItem)
			r.Put("/items", h.SetCartItemQuantity)
			r.Delete("/items", h.RemoveCartItem)
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Get("/", h.GetFavorites)
			r.Post("/sync", h.SyncFavorites)
			r.Put("/{productID}", h.AddFavorite)
			r.Delete("/{productID}", h.RemoveFavorite)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.GetOrders)
			r.Get("/{orderID}", h.GetOrder)
			r.Post("/{orderID}/cancel", h.CancelOrder)
		})

		r.Post("/promo/validate", h.ValidatePromo)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.RequireAdmin)

			r.Put("/orders/{orderID}/status", h.UpdateOrderStatus)
			r.Put("/stock", h.SetStock)
			r.Post("/promo-codes", h.CreatePromoCode)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
