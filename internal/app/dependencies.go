package app

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/snapcal/internal/config"
	"github.com/klokku/snapcal/internal/event_bus"
	"github.com/klokku/snapcal/internal/utils"
	"github.com/klokku/snapcal/pkg/appointment"
	"github.com/klokku/snapcal/pkg/extraction"
	"github.com/klokku/snapcal/pkg/google"
	"github.com/klokku/snapcal/pkg/session"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	EventBus *event_bus.EventBus

	SessionRepo    session.Repository
	SessionService *session.ServiceImpl
	Cookies        session.Cookies

	GoogleAuth    *google.GoogleAuth
	GoogleService *google.Service
	GoogleHandler *google.Handler

	Extractor *extraction.Extractor

	AppointmentService *appointment.ServiceImpl
	AppointmentHandler *appointment.Handler

	UploadLimiter *uploadLimiter
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) (*Dependencies, error) {
	location, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid default timezone %q: %w", cfg.DefaultTimezone, err)
	}

	deps := &Dependencies{}
	deps.Clock = &utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()

	deps.SessionRepo = session.NewRepository(db)
	deps.SessionService = session.NewService(deps.SessionRepo, deps.Clock, cfg.Session.Ttl)
	deps.Cookies = session.Cookies{
		Name:     cfg.Session.CookieName,
		Secure:   cfg.Session.Secure,
		SameSite: session.ParseSameSite(cfg.Session.SameSite),
		MaxAge:   cfg.Session.Ttl,
	}

	oauthConfig := google.NewOAuthConfig(cfg)
	deps.GoogleAuth = google.NewGoogleAuth(deps.SessionService, deps.Cookies, oauthConfig, cfg.Frontend.Url)
	deps.GoogleService = google.NewService(oauthConfig, deps.EventBus)
	deps.GoogleHandler = google.NewHandler(deps.GoogleService)

	deps.Extractor = extraction.NewExtractor(extraction.Config{
		BaseUrl:              cfg.AI.BaseUrl,
		ApiKey:               cfg.AI.ApiKey,
		Model:                cfg.AI.Model,
		TranscriptionBaseUrl: cfg.AI.TranscriptionBaseUrl,
		TranscriptionApiKey:  cfg.AI.TranscriptionApiKey,
		TranscriptionModel:   cfg.AI.TranscriptionModel,
		Location:             location,
	}, deps.Clock)

	deps.AppointmentService = appointment.NewService(
		deps.Extractor,
		deps.GoogleService,
		deps.GoogleService,
		deps.EventBus,
		cfg.DefaultTimezone,
		appointment.Timeouts{
			Extraction: cfg.Timeouts.Extraction,
			Timezone:   cfg.Timeouts.Timezone,
			Calendar:   cfg.Timeouts.Calendar,
		},
	)
	deps.AppointmentHandler = appointment.NewHandler(deps.AppointmentService, cfg.Upload.MaxBytes)

	deps.UploadLimiter = newUploadLimiter(cfg.Upload.RatePerMinute, cfg.Upload.Burst, deps.Clock)

	subscribeEvents(deps)
	return deps, nil
}

func subscribeEvents(deps *Dependencies) {
	event_bus.SubscribeTyped(deps.EventBus, event_bus.CredentialRefreshedType,
		func(e event_bus.EventT[event_bus.CredentialRefreshed]) error {
			return deps.SessionService.SaveToken(e.Context(), e.Data.SessionId, e.Data.Token)
		})

	event_bus.SubscribeTyped(deps.EventBus, event_bus.CalendarEventCreatedType,
		func(e event_bus.EventT[event_bus.CalendarEventCreated]) error {
			log.WithFields(log.Fields{
				"session":  e.Data.SessionId,
				"source":   e.Data.Source,
				"start":    e.Data.Start,
				"end":      e.Data.End,
				"timezone": e.Data.TimeZone,
			}).Infof("Calendar event %q created: %s", e.Data.Summary, e.Data.Link)
			return nil
		})
}
