package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Cart           *CartHandler
	Checkout       *CheckoutHandler
	Orders         *OrdersHandler
	Metrics        http.Handler
	Log            *zap.Logger
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(AccessLogMiddleware(cfg.Log))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(IdentityMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cfg.Cart.GetCart)
			r.Delete("/", cfg.Cart.ClearCart)
			r.Post("/items", cfg.Cart.AddItem)
			r.Put("/items/{medicine_id}", cfg.Cart.UpdateQuantity)
			r.Delete("/items/{medicine_id}", cfg.Cart.RemoveItem)
		})
		r.Post("/checkout", cfg.Checkout.PlaceOrder)
		r.Get("/orders", cfg.Orders.ListMyOrders)
		r.Get("/orders/{order_id}", cfg.Orders.GetMyOrder)

		r.Route("/staff/orders", func(r chi.Router) {
			r.Use(RequireStaff)
			r.Get("/", cfg.Orders.Board)
			r.Put("/{order_id}/{command}", cfg.Orders.ApplyCommand)
		})
	})

	return r
}
