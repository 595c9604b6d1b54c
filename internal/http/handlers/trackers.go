package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"paytrack/internal/domain/payment"
	"paytrack/internal/services/tracking"
	"paytrack/internal/tracker"

	"github.com/go-chi/chi/v5"
)

type startReq struct {
	Token string `json:"token"`
	Phone string `json:"phone"`
}

// trackerView is the snapshot plus the derived outcome for presentation.
type trackerView struct {
	tracker.Snapshot
	Outcome tracker.Outcome `json:"outcome"`
}

func view(s tracker.Snapshot) trackerView {
	return trackerView{Snapshot: s, Outcome: s.Outcome()}
}

func StartTracker(svc *tracking.Service, phones *payment.PhoneValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in startReq
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if in.Phone != "" {
			phone, err := phones.Normalize(in.Phone)
			if err != nil {
				http.Error(w, "invalid phone", http.StatusBadRequest)
				return
			}
			in.Phone = phone
		}

		snap, err := svc.Start(payment.Token(in.Token), in.Phone)
		switch {
		case errors.Is(err, tracker.ErrEmptyToken):
			http.Error(w, "missing token", http.StatusBadRequest)
			return
		case errors.Is(err, tracking.ErrSessionExists):
			writeJSON(w, http.StatusConflict, view(snap))
			return
		case err != nil:
			http.Error(w, "failed to start tracker", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, view(snap))
	}
}

func GetTracker(svc *tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Get(payment.Token(chi.URLParam(r, "token")))
		if errors.Is(err, tracking.ErrSessionNotFound) {
			http.Error(w, "tracker not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, view(snap))
	}
}

func ListTrackers(svc *tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps := svc.List()
		out := make([]trackerView, 0, len(snaps))
		for _, s := range snaps {
			out = append(out, view(s))
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
	}
}

func StopTracker(svc *tracking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := svc.Stop(payment.Token(chi.URLParam(r, "token"))); errors.Is(err, tracking.ErrSessionNotFound) {
			http.Error(w, "tracker not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
