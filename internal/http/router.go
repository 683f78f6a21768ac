package http

import (
	"net/http"
	"time"

	"github.com/fjod/corc-store/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Service        string
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	Logger         zerolog.Logger
}

// NewRouter mounts the API under /api/v1 next to /health and /metrics.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(Instrument(cfg.Metrics))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.Logout)
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Patch("/profile", h.UpdateProfile)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/categories", h.Categories)
			r.Post("/seed", h.SeedCatalog)
			r.Route("/{product_id}", func(r chi.Router) {
				r.Get("/", h.GetProduct)
				r.Put("/", h.UpdateProduct)
				r.Delete("/", h.DeleteProduct)
				r.Get("/reviews", h.ListReviews)
				r.Post("/reviews", h.AddReview)
			})
		})
		r.Get("/recently-viewed", h.RecentlyViewed)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Get("/quote", h.Quote)
			r.Post("/items", h.AddItem)
			r.Patch("/items/{line_key}", h.UpdateQuantity)
			r.Delete("/items/{line_key}", h.RemoveItem)
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", h.GetWishlist)
			r.Post("/{product_id}", h.ToggleWishlist)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.PlaceOrder)
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", h.ListAddresses)
			r.Post("/", h.AddAddress)
			r.Delete("/{address_id}", h.RemoveAddress)
		})

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.ListCards)
			r.Post("/", h.AddCard)
			r.Delete("/{card_id}", h.RemoveCard)
		})

		r.Route("/toasts", func(r chi.Router) {
			r.Get("/", h.ListToasts)
			r.Delete("/{toast_id}", h.DismissToast)
		})

		r.Get("/ui", h.GetUI)
		r.Patch("/ui", h.PatchUI)
	})

	return Tracing(cfg.Service, r)
}
