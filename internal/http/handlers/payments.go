package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"paytrack/internal/provider/status"
	"paytrack/internal/services/tracking"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// GetReceipt proxies GET /payments/{id} for the receipt view.
func GetReceipt(svc *tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Short, bounded context for provider call
		ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
		defer cancel()

		p, err := svc.Receipt(ctx, id)
		if err != nil {
			var pe *status.ProviderError
			if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
				http.Error(w, "payment not found", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("payment_id", id).Msg("receipt fetch failed")
			http.Error(w, "payment status provider unavailable", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
