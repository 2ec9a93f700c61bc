package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnauthenticated = errors.New("user is unauthenticated, Google authentication is required")
	ErrStateMismatch   = errors.New("oauth state does not match session")
)

// Session is the server side state behind a session cookie.
type Session struct {
	Id         uuid.UUID
	OAuthState string
	Token      *oauth2.Token
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Credential is what downstream Google calls need: the token and the session it belongs to,
// so a refreshed token can be written back.
type Credential struct {
	SessionId uuid.UUID
	Token     oauth2.Token
}

func (s Session) Authenticated() bool {
	return s.Token != nil && (s.Token.AccessToken != "" || s.Token.RefreshToken != "")
}

func (s Session) Credential() (Credential, bool) {
	if !s.Authenticated() {
		return Credential{}, false
	}
	return Credential{SessionId: s.Id, Token: *s.Token}, true
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
