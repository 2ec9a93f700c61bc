package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cookies writes and reads the session cookie.
type Cookies struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

// ParseSameSite maps "lax", "strict" and "none" to their http.SameSite value, defaulting to lax.
func ParseSameSite(value string) http.SameSite {
	switch strings.ToLower(value) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (c Cookies) Write(w http.ResponseWriter, s Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    s.Id.String(),
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure || c.SameSite == http.SameSiteNoneMode,
		SameSite: c.SameSite,
	})
}

func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure || c.SameSite == http.SameSiteNoneMode,
		SameSite: c.SameSite,
	})
}

// Read returns the session id from the request cookie, false when absent or not a UUID.
func (c Cookies) Read(r *http.Request) (uuid.UUID, bool) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
