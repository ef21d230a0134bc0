package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Availability *AvailabilityHandler
	Slots        *SlotHandler
	Catalog      *CatalogHandler
	// RateLimit wraps the mutating endpoints. Nil disables limiting.
	RateLimit  func(http.Handler) http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	for _, middleware := range cfg.Middleware {
		if middleware != nil {
			r.Use(middleware)
		}
	}

	limited := cfg.RateLimit
	if limited == nil {
		limited = func(next http.Handler) http.Handler { return next }
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/experiences/{experienceID}", func(r chi.Router) {
		if cfg.Catalog != nil {
			r.Get("/", cfg.Catalog.Get)
			r.With(limited).Put("/", cfg.Catalog.Save)
			r.Post("/pricing/breakdown", cfg.Catalog.Breakdown)
		}
		if cfg.Availability != nil {
			r.Post("/recurrence/preview", cfg.Availability.Preview)
			r.With(limited).Post("/recurrence/generate", cfg.Availability.Generate)
			r.With(limited).Post("/slots/ensure", cfg.Availability.Ensure)
		}
	})

	if cfg.Availability != nil {
		r.Get("/availability", cfg.Availability.List)
	}

	if cfg.Slots != nil {
		r.Route("/slots/{slotID}", func(r chi.Router) {
			r.Get("/", cfg.Slots.Get)
			r.Group(func(r chi.Router) {
				r.Use(limited)
				r.Patch("/time", cfg.Slots.Move)
				r.Patch("/capacity", cfg.Slots.UpdateCapacity)
				r.Post("/cancel", cfg.Slots.Cancel)
				r.Post("/reservations", cfg.Slots.Reserve)
			})
		})
		r.With(limited).Delete("/reservations/{reservationID}", cfg.Slots.CancelReservation)
	}

	return r
}
