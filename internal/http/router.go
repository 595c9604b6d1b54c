package httpx

import (
	"net/http"

	"paytrack/internal/config"
	"paytrack/internal/domain/payment"
	"paytrack/internal/http/handlers"
	middlewarex "paytrack/internal/http/middleware"
	"paytrack/internal/services/tracking"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterDependencies holds all dependencies for the HTTP router
type RouterDependencies struct {
	Config   config.Cfg
	Tracking *tracking.Service
}

// NewRouter exposes the tracker read model to a local presentation layer.
func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middlewarex.RequestLogger)
	r.Use(chimw.Recoverer)

	// Health check (public)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(middlewarex.APIKeyAuth(deps.Config.HTTP.APIKey))

		r.Route("/trackers", func(r chi.Router) {
			r.Post("/", handlers.StartTracker(deps.Tracking, payment.NewPhoneValidator(deps.Config.Tracker.PhoneCountry)))
			r.Get("/", handlers.ListTrackers(deps.Tracking))
			r.Get("/{token}", handlers.GetTracker(deps.Tracking))
			r.Delete("/{token}", handlers.StopTracker(deps.Tracking))
		})

		r.Get("/payments/{id}", handlers.GetReceipt(deps.Tracking))
	})

	return r
}
