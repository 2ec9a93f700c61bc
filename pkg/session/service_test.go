package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/snapcal/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func setupService(t *testing.T) (context.Context, *ServiceImpl, *RepositoryStub, *utils.MockClock) {
	t.Helper()
	repo := NewRepositoryStub()
	clock := &utils.MockClock{FixedNow: testNow}
	return context.Background(), NewService(repo, clock, time.Hour), repo, clock
}

func TestService_Start(t *testing.T) {
	ctx, service, repo, _ := setupService(t)

	started, err := service.Start(ctx)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, started.Id)
	assert.Equal(t, testNow, started.CreatedAt)
	assert.Equal(t, testNow.Add(time.Hour), started.ExpiresAt)
	assert.False(t, started.Authenticated())

	stored, err := repo.Get(ctx, started.Id)
	require.NoError(t, err)
	assert.Equal(t, started.Id, stored.Id)
}

func TestService_Get(t *testing.T) {
	t.Run("should slide expiry of a live session", func(t *testing.T) {
		ctx, service, repo, clock := setupService(t)
		started, err := service.Start(ctx)
		require.NoError(t, err)

		clock.Advance(30 * time.Minute)
		found, err := service.Get(ctx, started.Id)

		require.NoError(t, err)
		assert.Equal(t, testNow.Add(90*time.Minute), found.ExpiresAt)
		stored, _ := repo.Get(ctx, started.Id)
		assert.Equal(t, testNow.Add(90*time.Minute), stored.ExpiresAt)
	})

	t.Run("should remove and reject an expired session", func(t *testing.T) {
		ctx, service, repo, clock := setupService(t)
		started, err := service.Start(ctx)
		require.NoError(t, err)

		clock.Advance(time.Hour)
		_, err = service.Get(ctx, started.Id)

		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = repo.Get(ctx, started.Id)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("should report unknown session", func(t *testing.T) {
		ctx, service, _, _ := setupService(t)

		_, err := service.Get(ctx, uuid.New())

		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestService_OAuthState(t *testing.T) {
	tests := []struct {
		name    string
		state   func(stored string) string
		wantErr error
	}{
		{name: "matching state", state: func(stored string) string { return stored }},
		{name: "different state", state: func(string) string { return "forged" }, wantErr: ErrStateMismatch},
		{name: "empty state", state: func(string) string { return "" }, wantErr: ErrStateMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, service, repo, _ := setupService(t)
			started, err := service.Start(ctx)
			require.NoError(t, err)

			stored, err := service.BeginOAuth(ctx, started.Id)
			require.NoError(t, err)
			require.NotEmpty(t, stored)

			err = service.ConsumeOAuthState(ctx, started.Id, tt.state(stored))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			after, _ := repo.Get(ctx, started.Id)
			assert.Empty(t, after.OAuthState, "state must be single use")
		})
	}

	t.Run("should reject replayed state", func(t *testing.T) {
		ctx, service, _, _ := setupService(t)
		started, _ := service.Start(ctx)
		stored, _ := service.BeginOAuth(ctx, started.Id)

		require.NoError(t, service.ConsumeOAuthState(ctx, started.Id, stored))
		assert.ErrorIs(t, service.ConsumeOAuthState(ctx, started.Id, stored), ErrStateMismatch)
	})
}

func TestService_SaveToken(t *testing.T) {
	ctx, service, _, _ := setupService(t)
	started, _ := service.Start(ctx)

	err := service.SaveToken(ctx, started.Id, oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1"})
	require.NoError(t, err)
	err = service.SaveToken(ctx, started.Id, oauth2.Token{AccessToken: "access-2"})
	require.NoError(t, err)

	found, err := service.Get(ctx, started.Id)
	require.NoError(t, err)
	cred, ok := found.Credential()
	require.True(t, ok)
	assert.Equal(t, started.Id, cred.SessionId)
	assert.Equal(t, "access-2", cred.Token.AccessToken)
	assert.Equal(t, "refresh-1", cred.Token.RefreshToken)
}

func TestService_SaveToken_UnknownSession(t *testing.T) {
	ctx, service, _, _ := setupService(t)

	err := service.SaveToken(ctx, uuid.New(), oauth2.Token{AccessToken: "access"})

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_End(t *testing.T) {
	ctx, service, _, _ := setupService(t)
	started, _ := service.Start(ctx)

	require.NoError(t, service.End(ctx, started.Id))
	require.NoError(t, service.End(ctx, started.Id))

	_, err := service.Get(ctx, started.Id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_PurgeExpired(t *testing.T) {
	ctx, service, _, clock := setupService(t)
	old, _ := service.Start(ctx)
	clock.Advance(45 * time.Minute)
	fresh, _ := service.Start(ctx)
	clock.Advance(20 * time.Minute)

	deleted, err := service.PurgeExpired(ctx)

	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	_, err = service.Get(ctx, old.Id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = service.Get(ctx, fresh.Id)
	assert.NoError(t, err)
}

func TestCookies(t *testing.T) {
	tests := []struct {
		name     string
		sameSite string
		want     int
	}{
		{name: "lax", sameSite: "lax", want: 2},
		{name: "strict", sameSite: "Strict", want: 3},
		{name: "none", sameSite: "none", want: 4},
		{name: "unknown falls back to lax", sameSite: "bogus", want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, int(ParseSameSite(tt.sameSite)))
		})
	}
}

func TestContext(t *testing.T) {
	t.Run("should fail without session", func(t *testing.T) {
		_, err := Current(context.Background())
		assert.ErrorIs(t, err, ErrSessionNotFound)
		_, err = CurrentCredential(context.Background())
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("should fail for session without token", func(t *testing.T) {
		ctx := WithSession(context.Background(), Session{Id: uuid.New()})
		_, err := CurrentCredential(ctx)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("should return credential of authenticated session", func(t *testing.T) {
		id := uuid.New()
		ctx := WithSession(context.Background(), Session{Id: id, Token: &oauth2.Token{AccessToken: "a"}})
		cred, err := CurrentCredential(ctx)
		require.NoError(t, err)
		assert.Equal(t, id, cred.SessionId)
		assert.Equal(t, "a", cred.Token.AccessToken)
	})
}
