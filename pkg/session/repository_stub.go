package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

type RepositoryStub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Session
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{sessions: make(map[uuid.UUID]Session)}
}

func (r *RepositoryStub) Create(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Id] = copySession(s)
	return nil
}

func (r *RepositoryStub) Get(_ context.Context, id uuid.UUID) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return copySession(s), nil
}

func (r *RepositoryStub) UpdateState(_ context.Context, id uuid.UUID, state string) error {
	return r.update(id, func(s *Session) { s.OAuthState = state })
}

func (r *RepositoryStub) UpdateToken(_ context.Context, id uuid.UUID, token oauth2.Token) error {
	return r.update(id, func(s *Session) {
		if token.RefreshToken == "" && s.Token != nil {
			token.RefreshToken = s.Token.RefreshToken
		}
		s.Token = &token
	})
}

func (r *RepositoryStub) Extend(_ context.Context, id uuid.UUID, expiresAt time.Time) error {
	return r.update(id, func(s *Session) { s.ExpiresAt = expiresAt })
}

func (r *RepositoryStub) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *RepositoryStub) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *RepositoryStub) update(id uuid.UUID, fn func(s *Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	fn(&s)
	r.sessions[id] = s
	return nil
}

func copySession(s Session) Session {
	if s.Token != nil {
		token := *s.Token
		s.Token = &token
	}
	return s
}
