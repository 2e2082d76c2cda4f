package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Handler        *Handler
	Metrics        http.Handler
	Health         func(r *http.Request) error
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	h := cfg.Handler
	r.Get("/medicines/all", h.ListMedicines)
	r.Route("/orders", func(r chi.Router) {
		r.Post("/add", h.CreateOrder)
		r.Get("/all", h.ListOrders)
		r.Get("/user/{email}", h.ListOrdersByEmail)
		r.Get("/{id}", h.GetOrder)
		r.Put("/{command}/{id}", h.Transition)
	})

	return r
}
