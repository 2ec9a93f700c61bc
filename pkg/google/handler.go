package google

import (
	"context"
	"errors"
	"net/http"

	"github.com/klokku/snapcal/internal/rest"
	"github.com/klokku/snapcal/pkg/session"
)

type TimezoneResolver interface {
	ResolveTimezone(ctx context.Context, cred session.Credential) (string, error)
}

type calendarSettingsDto struct {
	TimeZone string `json:"timeZone"`
}

type Handler struct {
	resolver TimezoneResolver
}

func NewHandler(resolver TimezoneResolver) *Handler {
	return &Handler{resolver}
}

// CalendarSettings godoc
// @Summary Calendar settings of the signed in user
// @Description Returns the timezone new events are created in.
// @Tags Calendar
// @Produce json
// @Success 200 {object} calendarSettingsDto
// @Failure 401 {object} rest.ErrorResponse
// @Failure 502 {object} rest.ErrorResponse
// @Router /api/calendar/settings [get]
func (h *Handler) CalendarSettings(w http.ResponseWriter, r *http.Request) {
	cred, err := session.CurrentCredential(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusUnauthorized, "Please sign in with Google first", err)
		return
	}

	timezone, err := h.resolver.ResolveTimezone(r.Context(), cred)
	if err != nil {
		if errors.Is(err, session.ErrUnauthenticated) {
			rest.WriteError(w, http.StatusUnauthorized, "Google authorization expired, please sign in again", err)
			return
		}
		rest.WriteError(w, http.StatusBadGateway, "Could not read calendar settings", err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, calendarSettingsDto{TimeZone: timezone})
}
