package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/snapcal/internal/config"
	"github.com/klokku/snapcal/internal/event_bus"
	"github.com/klokku/snapcal/pkg/session"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const primaryCalendarId = "primary"

var ErrUpstreamWriteFailed = errors.New("calendar provider rejected the event")

// NewOAuthConfig returns the OAuth client used for the consent flow and for refreshing tokens.
func NewOAuthConfig(cfg config.Application) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.Google.ClientId,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.Host + "/auth/google/callback",
		Scopes:       []string{calendar.CalendarEventsScope, calendar.CalendarSettingsReadonlyScope},
	}
}

// Service talks to the Google Calendar API on behalf of one session credential per call.
type Service struct {
	oauthConfig *oauth2.Config
	bus         *event_bus.EventBus
	tokens      *refreshedTokens
	options     []option.ClientOption
}

// NewService builds the calendar client factory. options are appended to every client, tests use them
// to point at a fake endpoint.
func NewService(oauthConfig *oauth2.Config, bus *event_bus.EventBus, options ...option.ClientOption) *Service {
	return &Service{oauthConfig: oauthConfig, bus: bus, tokens: newRefreshedTokens(), options: options}
}

func (s *Service) calendarService(ctx context.Context, cred session.Credential) (*calendar.Service, error) {
	if cred.Token.AccessToken == "" && cred.Token.RefreshToken == "" {
		return nil, session.ErrUnauthenticated
	}
	token := s.tokens.latest(cred)
	tokenSource := &notifyingTokenSource{
		ctx:       ctx,
		base:      s.oauthConfig.TokenSource(ctx, &token),
		bus:       s.bus,
		tokens:    s.tokens,
		sessionId: cred.SessionId,
		last:      token.AccessToken,
	}
	client := oauth2.NewClient(ctx, tokenSource)

	options := append([]option.ClientOption{option.WithHTTPClient(client)}, s.options...)
	service, err := calendar.NewService(ctx, options...)
	if err != nil {
		err := fmt.Errorf("unable to create Calendar client: %w", err)
		log.Error(err)
		return nil, err
	}
	return service, nil
}

// notifyingTokenSource publishes CredentialRefreshed whenever the wrapped source hands out a new access token.
type notifyingTokenSource struct {
	ctx       context.Context
	base      oauth2.TokenSource
	bus       *event_bus.EventBus
	tokens    *refreshedTokens
	sessionId uuid.UUID

	mu   sync.Mutex
	last string
}

func (n *notifyingTokenSource) Token() (*oauth2.Token, error) {
	token, err := n.base.Token()
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	refreshed := token.AccessToken != n.last
	n.last = token.AccessToken
	n.mu.Unlock()

	if refreshed {
		n.tokens.store(n.sessionId, *token, time.Now())
	}
	if refreshed && n.bus != nil {
		log.Debugf("Google token refreshed for session %s", n.sessionId)
		err := n.bus.Publish(event_bus.NewEvent(n.ctx, event_bus.CredentialRefreshedType, event_bus.CredentialRefreshed{
			SessionId: n.sessionId,
			Token:     *token,
		}))
		if err != nil {
			log.Warnf("failed to store refreshed token for session %s: %v", n.sessionId, err)
		}
	}
	return token, nil
}

// classify maps an error returned by the Google client. Rejected or revoked credentials become
// ErrUnauthenticated, everything else that came back from Google wraps fallback.
func classify(err error, fallback error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: token refresh rejected: %v", session.ErrUnauthenticated, retrieveErr)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", session.ErrUnauthenticated, apiErr)
		}
		return fmt.Errorf("%w: %w", fallback, apiErr)
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
