package app

import (
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/klokku/snapcal/internal/config"
	"github.com/klokku/snapcal/internal/rest"
	"github.com/klokku/snapcal/internal/utils"
	"github.com/klokku/snapcal/pkg/session"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("too many uploads, please wait a moment")

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies, cfg config.Application) {
	r.Use(mux.CORSMethodMiddleware(r))
	r.Use(corsMiddleware(cfg.Cors.AllowedOrigins))
	r.Use(sessionMiddleware(deps.SessionService, deps.Cookies))
}

// corsMiddleware allows credentialed requests from the configured origins and answers preflight requests.
func corsMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowAll := slices.Contains(allowedOrigins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			origin := req.Header.Get("Origin")
			if origin != "" && (allowAll || slices.Contains(allowedOrigins, origin)) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			if req.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// sessionMiddleware loads the session named by the cookie into the request context. Requests without a
// valid session continue anonymously and get a stale cookie removed.
func sessionMiddleware(sessions session.Service, cookies session.Cookies) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id, ok := cookies.Read(req)
			if !ok {
				next.ServeHTTP(w, req)
				return
			}

			current, err := sessions.Get(req.Context(), id)
			if errors.Is(err, session.ErrSessionNotFound) {
				log.Debugf("session %s not found, continuing anonymously", id)
				cookies.Clear(w)
				next.ServeHTTP(w, req)
				return
			}
			if err != nil {
				log.Errorf("failed to load session %s: %v", id, err)
				rest.WriteError(w, http.StatusInternalServerError, "Failed to load session", err)
				return
			}

			cookies.Write(w, current)
			next.ServeHTTP(w, req.WithContext(session.WithSession(req.Context(), current)))
		})
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// uploadLimiter keeps one token bucket per session, or per client address for anonymous callers.
type uploadLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	clock     utils.Clock
	lastPrune time.Time
}

const visitorIdleTimeout = 30 * time.Minute

func newUploadLimiter(perMinute int, burst int, clock utils.Clock) *uploadLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	return &uploadLimiter{
		visitors:  make(map[string]*visitor),
		limit:     limit,
		burst:     burst,
		clock:     clock,
		lastPrune: clock.Now(),
	}
}

func (l *uploadLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.Sub(l.lastPrune) > visitorIdleTimeout {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorIdleTimeout {
				delete(l.visitors, k)
			}
		}
		l.lastPrune = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *uploadLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		key := clientKey(req)
		if !l.allow(key) {
			log.Infof("upload rate limit exceeded for %s", key)
			w.Header().Set("Retry-After", "60")
			rest.WriteError(w, http.StatusTooManyRequests, "Too many uploads, please try again in a minute", ErrRateLimited)
			return
		}
		next(w, req)
	}
}

func clientKey(req *http.Request) string {
	if current, err := session.Current(req.Context()); err == nil {
		return "session:" + current.Id.String()
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	return "addr:" + host
}
