package google

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/klokku/snapcal/internal/rest"
	"github.com/klokku/snapcal/pkg/session"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

type authStatus struct {
	Authenticated bool `json:"authenticated"`
}

// TokenExchanger turns an authorization code into a token. *oauth2.Config implements it.
type TokenExchanger interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// GoogleAuth serves the OAuth consent round trip and stores the resulting token in the caller's session.
type GoogleAuth struct {
	sessions    session.Service
	cookies     session.Cookies
	oauth       TokenExchanger
	frontendUrl string
}

func NewGoogleAuth(sessions session.Service, cookies session.Cookies, oauth TokenExchanger, frontendUrl string) *GoogleAuth {
	return &GoogleAuth{sessions: sessions, cookies: cookies, oauth: oauth, frontendUrl: frontendUrl}
}

// OAuthLogin godoc
// @Summary Start Google sign in
// @Description Redirects to the Google consent screen. Creates a session when the caller has none.
// @Tags Auth
// @Success 302
// @Router /auth/google [get]
func (g *GoogleAuth) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, err := session.Current(ctx)
	if err != nil {
		current, err = g.sessions.Start(ctx)
		if err != nil {
			log.Errorf("failed to start session: %v", err)
			rest.WriteError(w, http.StatusInternalServerError, "Failed to handle Google authentication", err)
			return
		}
		g.cookies.Write(w, current)
	}

	state, err := g.sessions.BeginOAuth(ctx, current.Id)
	if err != nil {
		log.Errorf("failed to store oauth state for session %s: %v", current.Id, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle Google authentication", err)
		return
	}

	log.Tracef("Redirecting session %s to Google consent", current.Id)
	redirectUrl := g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, redirectUrl, http.StatusFound)
}

// OAuthCallback godoc
// @Summary Google sign in callback
// @Description Verifies the state, exchanges the code and redirects back to the frontend with auth=success or auth=failure.
// @Tags Auth
// @Param code query string true "Authorization code"
// @Param state query string true "State nonce"
// @Success 302
// @Router /auth/google/callback [get]
func (g *GoogleAuth) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, err := session.Current(ctx)
	if err != nil {
		log.Warn("oauth callback without session")
		g.redirectToFrontend(w, r, false)
		return
	}

	if errParam := r.FormValue("error"); errParam != "" {
		log.Infof("Google consent denied for session %s: %s", current.Id, errParam)
		_ = g.sessions.ConsumeOAuthState(ctx, current.Id, "")
		g.redirectToFrontend(w, r, false)
		return
	}

	if err := g.sessions.ConsumeOAuthState(ctx, current.Id, r.FormValue("state")); err != nil {
		log.Errorf("rejecting oauth callback for session %s: %v", current.Id, err)
		g.redirectToFrontend(w, r, false)
		return
	}

	token, err := g.oauth.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		log.Errorf("unable to exchange code for token: %v", err)
		g.redirectToFrontend(w, r, false)
		return
	}

	if err := g.sessions.SaveToken(ctx, current.Id, *token); err != nil {
		log.Errorf("unable to store Google token for session %s: %v", current.Id, err)
		g.redirectToFrontend(w, r, false)
		return
	}
	log.Debugf("Successfully stored Google token for session %s", current.Id)
	g.redirectToFrontend(w, r, true)
}

// Status godoc
// @Summary Authentication status
// @Tags Auth
// @Produce json
// @Success 200 {object} authStatus
// @Router /api/auth/status [get]
func (g *GoogleAuth) Status(w http.ResponseWriter, r *http.Request) {
	current, err := session.Current(r.Context())
	authenticated := err == nil && current.Authenticated()
	rest.WriteJSON(w, http.StatusOK, authStatus{Authenticated: authenticated})
}

// OAuthLogout godoc
// @Summary Sign out
// @Description Deletes the session together with its Google token.
// @Tags Auth
// @Success 204
// @Router /auth/logout [post]
func (g *GoogleAuth) OAuthLogout(w http.ResponseWriter, r *http.Request) {
	current, err := session.Current(r.Context())
	if err == nil {
		if err := g.sessions.End(r.Context(), current.Id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			log.Errorf("failed to end session %s: %v", current.Id, err)
			rest.WriteError(w, http.StatusInternalServerError, "Failed to sign out", err)
			return
		}
	}
	g.cookies.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (g *GoogleAuth) redirectToFrontend(w http.ResponseWriter, r *http.Request, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	target, err := url.Parse(g.frontendUrl)
	if err != nil {
		log.Errorf("invalid frontend url %q: %v", g.frontendUrl, err)
		target = &url.URL{Path: "/"}
	}
	query := target.Query()
	query.Set("auth", result)
	target.RawQuery = query.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}
