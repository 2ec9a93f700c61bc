package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/snapcal/internal/config"
	"github.com/klokku/snapcal/internal/database"
	"github.com/klokku/snapcal/internal/rest"
	"github.com/klokku/snapcal/pkg/session"
	log "github.com/sirupsen/logrus"
)

const (
	shutdownTimeout = 15 * time.Second
	responseMargin  = 15 * time.Second
)

// Application wires configuration, database, router, and server lifecycle.
type Application struct {
	cfg    config.Application
	db     *pgxpool.Pool
	deps   *Dependencies
	router *mux.Router
	srv    *http.Server
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication() (*Application, error) {
	cfg, err := config.Load("./config/application.yaml")
	if err != nil {
		return nil, err
	}

	// DB + migrations
	if err := database.Migrate(cfg.Database); err != nil {
		return nil, err
	}
	db, err := database.Open(context.Background(), cfg.Database)
	if err != nil {
		return nil, err
	}

	deps, err := BuildDependencies(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	r := NewRouter(deps, cfg, db)

	srv := &http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      writeTimeout(cfg.Timeouts),
		IdleTimeout:       60 * time.Second,
	}

	return &Application{cfg: cfg, db: db, deps: deps, router: r, srv: srv}, nil
}

// writeTimeout covers a whole event creation chain. An unbounded call leaves the response unbounded too.
func writeTimeout(timeouts config.Timeouts) time.Duration {
	if timeouts.Extraction <= 0 || timeouts.Timezone <= 0 || timeouts.Calendar <= 0 {
		log.Warn("Per call timeouts are not all set, server write timeout is disabled")
		return 0
	}
	return timeouts.Extraction + timeouts.Timezone + timeouts.Calendar + responseMargin
}

// NewRouter builds the router with middlewares, API routes and, when enabled, the frontend.
func NewRouter(deps *Dependencies, cfg config.Application, db Pinger) *mux.Router {
	r := mux.NewRouter()
	SetupMiddleware(r, deps, cfg)
	RegisterRoutes(r, deps, db)

	// Frontend is served for everything the API does not match, without session handling.
	if cfg.Frontend.Enabled {
		r.NotFoundHandler = rest.NewFrontendHandler(cfg.Frontend.Dir, "index.html")
	}
	return r
}

// Run starts the HTTP server and the session sweeper and blocks until SIGINT or SIGTERM.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.db.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		session.RunSweeper(ctx, a.deps.SessionService, a.cfg.Session.SweepInterval)
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case runErr = <-serverErr:
		log.Errorf("server stopped: %v", runErr)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
		runErr = errors.Join(runErr, err)
	}
	wg.Wait()
	return runErr
}
