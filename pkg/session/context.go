package session

import (
	"context"

	log "github.com/sirupsen/logrus"
)

type contextKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// Current returns the session attached to the request context. Returns ErrSessionNotFound if there is none.
func Current(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(contextKey{}).(Session)
	if !ok {
		log.Trace("session not found in context")
		return Session{}, ErrSessionNotFound
	}
	return s, nil
}

// CurrentCredential returns the Google credential of the request's session or ErrUnauthenticated.
func CurrentCredential(ctx context.Context) (Credential, error) {
	s, err := Current(ctx)
	if err != nil {
		return Credential{}, ErrUnauthenticated
	}
	cred, ok := s.Credential()
	if !ok {
		return Credential{}, ErrUnauthenticated
	}
	return cred, nil
}
