package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/snapcal/internal/utils"
	"github.com/klokku/snapcal/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type exchangerStub struct {
	token *oauth2.Token
	err   error
	codes []string
}

func (e *exchangerStub) AuthCodeURL(state string, _ ...oauth2.AuthCodeOption) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (e *exchangerStub) Exchange(_ context.Context, code string, _ ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	e.codes = append(e.codes, code)
	return e.token, e.err
}

var testCookies = session.Cookies{Name: "snapcal_session", SameSite: http.SameSiteLaxMode, MaxAge: time.Hour}

func setupAuth(t *testing.T, exchanger *exchangerStub) (*GoogleAuth, session.Service, *session.RepositoryStub) {
	t.Helper()
	repo := session.NewRepositoryStub()
	sessions := session.NewService(repo, &utils.MockClock{FixedNow: time.Now()}, time.Hour)
	return NewGoogleAuth(sessions, testCookies, exchanger, "http://localhost:5173/"), sessions, repo
}

func TestGoogleAuth_OAuthLogin(t *testing.T) {
	t.Run("should start session and redirect to consent", func(t *testing.T) {
		// given
		auth, _, repo := setupAuth(t, &exchangerStub{})
		req := httptest.NewRequest(http.MethodGet, "/auth/google", nil)
		rr := httptest.NewRecorder()

		// when
		auth.OAuthLogin(rr, req)

		// then
		require.Equal(t, http.StatusFound, rr.Code)
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "snapcal_session", cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)

		id, err := uuid.Parse(cookies[0].Value)
		require.NoError(t, err)
		stored, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		require.NotEmpty(t, stored.OAuthState)

		location, err := url.Parse(rr.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, stored.OAuthState, location.Query().Get("state"))
	})

	t.Run("should reuse existing session", func(t *testing.T) {
		auth, sessions, repo := setupAuth(t, &exchangerStub{})
		current, err := sessions.Start(context.Background())
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/auth/google", nil)
		req = req.WithContext(session.WithSession(req.Context(), current))
		rr := httptest.NewRecorder()

		auth.OAuthLogin(rr, req)

		assert.Equal(t, http.StatusFound, rr.Code)
		assert.Empty(t, rr.Result().Cookies())
		stored, _ := repo.Get(context.Background(), current.Id)
		assert.NotEmpty(t, stored.OAuthState)
	})
}

func TestGoogleAuth_OAuthCallback(t *testing.T) {
	tests := []struct {
		name         string
		stateMatches bool
		errorParam   string
		exchangeErr  error
		wantAuth     string
		wantToken    bool
	}{
		{name: "valid callback", stateMatches: true, wantAuth: "success", wantToken: true},
		{name: "state mismatch", stateMatches: false, wantAuth: "failure"},
		{name: "consent denied", stateMatches: true, errorParam: "access_denied", wantAuth: "failure"},
		{name: "exchange failure", stateMatches: true, exchangeErr: errors.New("invalid_grant"), wantAuth: "failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			exchanger := &exchangerStub{
				token: &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"},
				err:   tt.exchangeErr,
			}
			auth, sessions, repo := setupAuth(t, exchanger)
			ctx := context.Background()
			current, _ := sessions.Start(ctx)
			state, _ := sessions.BeginOAuth(ctx, current.Id)
			if !tt.stateMatches {
				state = "forged"
			}
			query := url.Values{"code": {"auth-code"}, "state": {state}}
			if tt.errorParam != "" {
				query.Set("error", tt.errorParam)
			}
			req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?"+query.Encode(), nil)
			req = req.WithContext(session.WithSession(req.Context(), current))
			rr := httptest.NewRecorder()

			// when
			auth.OAuthCallback(rr, req)

			// then
			assert.Equal(t, http.StatusFound, rr.Code)
			assert.Equal(t, "http://localhost:5173/?auth="+tt.wantAuth, rr.Header().Get("Location"))
			stored, err := repo.Get(ctx, current.Id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, stored.Authenticated())
			assert.Empty(t, stored.OAuthState)
		})
	}

	t.Run("should fail without session", func(t *testing.T) {
		exchanger := &exchangerStub{}
		auth, _, _ := setupAuth(t, exchanger)
		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=c&state=s", nil)
		rr := httptest.NewRecorder()

		auth.OAuthCallback(rr, req)

		assert.Equal(t, "http://localhost:5173/?auth=failure", rr.Header().Get("Location"))
		assert.Empty(t, exchanger.codes)
	})
}

func TestGoogleAuth_Status(t *testing.T) {
	tests := []struct {
		name    string
		session *session.Session
		want    string
	}{
		{name: "no session", want: `{"authenticated":false}`},
		{name: "anonymous session", session: &session.Session{}, want: `{"authenticated":false}`},
		{name: "signed in", session: &session.Session{Token: &oauth2.Token{AccessToken: "a"}}, want: `{"authenticated":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, _, _ := setupAuth(t, &exchangerStub{})
			req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
			if tt.session != nil {
				req = req.WithContext(session.WithSession(req.Context(), *tt.session))
			}
			rr := httptest.NewRecorder()

			auth.Status(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, tt.want, rr.Body.String())
		})
	}
}

func TestGoogleAuth_OAuthLogout(t *testing.T) {
	auth, sessions, repo := setupAuth(t, &exchangerStub{})
	ctx := context.Background()
	current, _ := sessions.Start(ctx)
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(session.WithSession(req.Context(), current))
	rr := httptest.NewRecorder()

	auth.OAuthLogout(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
	_, err := repo.Get(ctx, current.Id)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}
