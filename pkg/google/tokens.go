package google

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/snapcal/pkg/session"
	"golang.org/x/oauth2"
)

// refreshedTokens keeps the newest token obtained for each session until it expires. Credentials
// read at the start of a request go stale once a call refreshes them; later calls pick the fresh token here.
type refreshedTokens struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]oauth2.Token
}

func newRefreshedTokens() *refreshedTokens {
	return &refreshedTokens{tokens: make(map[uuid.UUID]oauth2.Token)}
}

// latest returns the cached token when it outlives the one in cred.
func (r *refreshedTokens) latest(cred session.Credential) oauth2.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	cached, ok := r.tokens[cred.SessionId]
	if ok && !cred.Token.Expiry.IsZero() && cached.Expiry.After(cred.Token.Expiry) {
		return cached
	}
	return cred.Token
}

func (r *refreshedTokens) store(sessionId uuid.UUID, token oauth2.Token, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cached := range r.tokens {
		if !cached.Expiry.After(now) {
			delete(r.tokens, id)
		}
	}
	r.tokens[sessionId] = token
}
