package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/snapcal/internal/config"
	"github.com/klokku/snapcal/internal/event_bus"
	"github.com/klokku/snapcal/internal/utils"
	"github.com/klokku/snapcal/pkg/appointment"
	"github.com/klokku/snapcal/pkg/google"
	"github.com/klokku/snapcal/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type pingerStub struct {
	err error
}

func (p pingerStub) Ping(context.Context) error {
	return p.err
}

type testApp struct {
	deps        *Dependencies
	repo        *session.RepositoryStub
	clock       *utils.MockClock
	appointment *appointment.ServiceStub
	cfg         config.Application
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	cfg := config.Defaults()
	cfg.Frontend.Enabled = false
	cfg.Cors.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.Upload.RatePerMinute = 1
	cfg.Upload.Burst = 2

	clock := &utils.MockClock{FixedNow: testNow}
	repo := session.NewRepositoryStub()
	deps := &Dependencies{Clock: clock, EventBus: event_bus.NewEventBus(), SessionRepo: repo}
	deps.SessionService = session.NewService(repo, clock, cfg.Session.Ttl)
	deps.Cookies = session.Cookies{Name: cfg.Session.CookieName, SameSite: http.SameSiteLaxMode, MaxAge: cfg.Session.Ttl}
	deps.GoogleAuth = google.NewGoogleAuth(deps.SessionService, deps.Cookies, google.NewOAuthConfig(cfg), cfg.Frontend.Url)
	deps.GoogleHandler = google.NewHandler(nil)
	stub := &appointment.ServiceStub{Result: appointment.Result{EventLink: "link"}}
	deps.AppointmentHandler = appointment.NewHandler(stub, cfg.Upload.MaxBytes)
	deps.UploadLimiter = newUploadLimiter(cfg.Upload.RatePerMinute, cfg.Upload.Burst, clock)
	subscribeEvents(deps)

	return &testApp{deps: deps, repo: repo, clock: clock, appointment: stub, cfg: cfg}
}

func (a *testApp) signedInSession(t *testing.T) session.Session {
	t.Helper()
	ctx := context.Background()
	s, err := a.deps.SessionService.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, a.deps.SessionService.SaveToken(ctx, s.Id, oauth2.Token{AccessToken: "access", RefreshToken: "refresh"}))
	return s
}

func (a *testApp) withCookie(req *http.Request, s session.Session) *http.Request {
	req.AddCookie(&http.Cookie{Name: a.cfg.Session.CookieName, Value: s.Id.String()})
	return req
}

func TestCorsMiddleware(t *testing.T) {
	a := setupTestApp(t)
	router := NewRouter(a.deps, a.cfg, pingerStub{})

	t.Run("should answer preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/create-event-from-image", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
		assert.Empty(t, a.appointment.Received)
	})

	t.Run("should not allow unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSessionMiddleware(t *testing.T) {
	t.Run("should treat request without cookie as anonymous", func(t *testing.T) {
		a := setupTestApp(t)
		router := NewRouter(a.deps, a.cfg, pingerStub{})
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/auth/status", nil))

		assert.JSONEq(t, `{"authenticated":false}`, rr.Body.String())
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("should load signed in session and refresh cookie", func(t *testing.T) {
		a := setupTestApp(t)
		router := NewRouter(a.deps, a.cfg, pingerStub{})
		s := a.signedInSession(t)
		a.clock.Advance(time.Hour)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, a.withCookie(httptest.NewRequest(http.MethodGet, "/api/auth/status", nil), s))

		assert.JSONEq(t, `{"authenticated":true}`, rr.Body.String())
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, s.Id.String(), cookies[0].Value)
		stored, _ := a.repo.Get(context.Background(), s.Id)
		assert.Equal(t, testNow.Add(time.Hour+a.cfg.Session.Ttl), stored.ExpiresAt)
	})

	t.Run("should clear cookie of unknown session", func(t *testing.T) {
		a := setupTestApp(t)
		router := NewRouter(a.deps, a.cfg, pingerStub{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
		req.AddCookie(&http.Cookie{Name: a.cfg.Session.CookieName, Value: uuid.NewString()})

		router.ServeHTTP(rr, req)

		assert.JSONEq(t, `{"authenticated":false}`, rr.Body.String())
		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})

	t.Run("should treat expired session as absent", func(t *testing.T) {
		a := setupTestApp(t)
		router := NewRouter(a.deps, a.cfg, pingerStub{})
		s := a.signedInSession(t)
		a.clock.Advance(a.cfg.Session.Ttl)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, a.withCookie(httptest.NewRequest(http.MethodGet, "/api/auth/status", nil), s))

		assert.JSONEq(t, `{"authenticated":false}`, rr.Body.String())
	})
}

func TestUploadLimiter(t *testing.T) {
	a := setupTestApp(t)
	router := NewRouter(a.deps, a.cfg, pingerStub{})
	s := a.signedInSession(t)
	upload := func(s session.Session) int {
		req := httptest.NewRequest(http.MethodPost, "/api/create-event-from-image", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, a.withCookie(req, s))
		return rr.Code
	}

	// requests without multipart body are rejected by the handler, the limiter still counts them
	assert.Equal(t, http.StatusBadRequest, upload(s))
	assert.Equal(t, http.StatusBadRequest, upload(s))
	assert.Equal(t, http.StatusTooManyRequests, upload(s))

	other := a.signedInSession(t)
	assert.Equal(t, http.StatusBadRequest, upload(other))

	a.clock.Advance(time.Minute)
	assert.Equal(t, http.StatusBadRequest, upload(s))
}

func TestUploadLimiter_PrunesIdleVisitors(t *testing.T) {
	clock := &utils.MockClock{FixedNow: testNow}
	limiter := newUploadLimiter(1, 1, clock)

	assert.True(t, limiter.allow("a"))
	assert.False(t, limiter.allow("a"))

	clock.Advance(visitorIdleTimeout + time.Second)
	assert.True(t, limiter.allow("b"))
	assert.NotContains(t, limiter.visitors, "a")
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pinger     pingerStub
		wantStatus int
	}{
		{name: "database reachable", pinger: pingerStub{}, wantStatus: http.StatusOK},
		{name: "database down", pinger: pingerStub{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := setupTestApp(t)
			router := NewRouter(a.deps, a.cfg, tt.pinger)
			rr := httptest.NewRecorder()

			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestCredentialRefreshedIsStored(t *testing.T) {
	a := setupTestApp(t)
	s := a.signedInSession(t)

	err := a.deps.EventBus.Publish(event_bus.NewEvent(context.Background(), event_bus.CredentialRefreshedType, event_bus.CredentialRefreshed{
		SessionId: s.Id,
		Token:     oauth2.Token{AccessToken: "renewed"},
	}))

	require.NoError(t, err)
	stored, _ := a.repo.Get(context.Background(), s.Id)
	require.NotNil(t, stored.Token)
	assert.Equal(t, "renewed", stored.Token.AccessToken)
	assert.Equal(t, "refresh", stored.Token.RefreshToken)
}
