package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/snapcal/internal/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type Service interface {
	Start(ctx context.Context) (Session, error)
	Get(ctx context.Context, id uuid.UUID) (Session, error)
	BeginOAuth(ctx context.Context, id uuid.UUID) (string, error)
	ConsumeOAuthState(ctx context.Context, id uuid.UUID, state string) error
	SaveToken(ctx context.Context, id uuid.UUID, token oauth2.Token) error
	End(ctx context.Context, id uuid.UUID) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type ServiceImpl struct {
	repo  Repository
	clock utils.Clock
	ttl   time.Duration
}

func NewService(repo Repository, clock utils.Clock, ttl time.Duration) *ServiceImpl {
	return &ServiceImpl{repo: repo, clock: clock, ttl: ttl}
}

func (s *ServiceImpl) Start(ctx context.Context) (Session, error) {
	now := s.clock.Now()
	newSession := Session{
		Id:        uuid.New(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, newSession); err != nil {
		return Session{}, fmt.Errorf("failed to start session: %w", err)
	}
	log.Debugf("Started session %s", newSession.Id)
	return newSession, nil
}

// Get returns a live session and slides its expiry. Expired sessions are removed and
// reported as ErrSessionNotFound.
func (s *ServiceImpl) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	found, err := s.repo.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	now := s.clock.Now()
	if found.Expired(now) {
		log.Debugf("Session %s expired at %s", id, found.ExpiresAt)
		if err := s.repo.Delete(ctx, id); err != nil {
			log.Warnf("failed to delete expired session %s: %v", id, err)
		}
		return Session{}, ErrSessionNotFound
	}

	expiresAt := now.Add(s.ttl)
	if err := s.repo.Extend(ctx, id, expiresAt); err != nil {
		return Session{}, fmt.Errorf("failed to extend session: %w", err)
	}
	found.ExpiresAt = expiresAt
	return found, nil
}

// BeginOAuth stores a fresh nonce for the consent round trip and returns it.
func (s *ServiceImpl) BeginOAuth(ctx context.Context, id uuid.UUID) (string, error) {
	state := uuid.NewString()
	if err := s.repo.UpdateState(ctx, id, state); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return state, nil
}

// ConsumeOAuthState checks state against the stored nonce. The nonce is cleared either way.
func (s *ServiceImpl) ConsumeOAuthState(ctx context.Context, id uuid.UUID, state string) error {
	found, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateState(ctx, id, ""); err != nil {
		return fmt.Errorf("failed to clear oauth state: %w", err)
	}
	if found.OAuthState == "" || found.OAuthState != state {
		log.Warnf("oauth state mismatch for session %s", id)
		return ErrStateMismatch
	}
	return nil
}

func (s *ServiceImpl) SaveToken(ctx context.Context, id uuid.UUID, token oauth2.Token) error {
	if err := s.repo.UpdateToken(ctx, id, token); err != nil {
		return fmt.Errorf("failed to store token for session %s: %w", id, err)
	}
	log.Debugf("Stored Google token for session %s", id)
	return nil
}

func (s *ServiceImpl) End(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (s *ServiceImpl) PurgeExpired(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	if deleted > 0 {
		log.Infof("Purged %d expired session(s)", deleted)
	}
	return deleted, nil
}
