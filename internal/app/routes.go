package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/snapcal/internal/rest"
)

type healthDto struct {
	Status string `json:"status"`
}

// Pinger reports whether the backing store is reachable. *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, db Pinger) {

	// Appointments
	r.HandleFunc("/api/create-event-from-image", deps.UploadLimiter.Middleware(deps.AppointmentHandler.CreateEventFromImage)).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/create-event-from-voice", deps.UploadLimiter.Middleware(deps.AppointmentHandler.CreateEventFromVoice)).Methods(http.MethodPost, http.MethodOptions)

	// Google authentication
	r.HandleFunc("/auth/google", deps.GoogleAuth.OAuthLogin).Methods(http.MethodGet)
	r.HandleFunc("/auth/google/callback", deps.GoogleAuth.OAuthCallback).Methods(http.MethodGet)
	r.HandleFunc("/auth/logout", deps.GoogleAuth.OAuthLogout).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/auth/status", deps.GoogleAuth.Status).Methods(http.MethodGet, http.MethodOptions)

	// Calendar
	r.HandleFunc("/api/calendar/settings", deps.GoogleHandler.CalendarSettings).Methods(http.MethodGet, http.MethodOptions)

	// Health
	r.HandleFunc("/api/health", healthHandler(db)).Methods(http.MethodGet)
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				rest.WriteError(w, http.StatusServiceUnavailable, "Database unavailable", err)
				return
			}
		}
		rest.WriteJSON(w, http.StatusOK, healthDto{Status: "ok"})
	}
}
