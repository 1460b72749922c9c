package entitlement

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router mounts the entitlement API.
func Router(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/plans", h.plans)

	r.Post("/receipts/validate", h.validateReceipt)
	r.Post("/billing/webhook", h.billingWebhook)

	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Get("/usage", h.usage)
		r.Get("/usage/{resource}", h.checkQuota)
		r.Post("/usage/{resource}/consume", h.consume)

		r.Post("/plan", h.switchPlan)
		r.Post("/cancel", h.cancel)
		r.Post("/resubscribe", h.resubscribe)
		r.Post("/override", h.override)
	})

	r.Post("/subscriptions/{provider}/{lineageID}/retry", h.retryValidation)

	return r
}
