package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klokku/snapcal/internal/event_bus"
	"github.com/klokku/snapcal/pkg/event"
	"github.com/klokku/snapcal/pkg/extraction"
	"github.com/klokku/snapcal/pkg/session"
	log "github.com/sirupsen/logrus"
)

type Extractor interface {
	Extract(ctx context.Context, media extraction.Media) (event.ExtractedEvent, error)
}

type TimezoneResolver interface {
	ResolveTimezone(ctx context.Context, cred session.Credential) (string, error)
}

type CalendarWriter interface {
	InsertEvent(ctx context.Context, cred session.Credential, e event.NormalizedEvent) (string, error)
}

// Timeouts bound each outbound call separately. Zero means no extra deadline.
type Timeouts struct {
	Extraction time.Duration
	Timezone   time.Duration
	Calendar   time.Duration
}

type Result struct {
	EventLink string
	Event     event.NormalizedEvent
}

type Service interface {
	CreateEvent(ctx context.Context, cred session.Credential, media extraction.Media) (Result, error)
}

type ServiceImpl struct {
	extractor       Extractor
	resolver        TimezoneResolver
	writer          CalendarWriter
	bus             *event_bus.EventBus
	defaultTimezone string
	timeouts        Timeouts
}

func NewService(
	extractor Extractor,
	resolver TimezoneResolver,
	writer CalendarWriter,
	bus *event_bus.EventBus,
	defaultTimezone string,
	timeouts Timeouts,
) *ServiceImpl {
	return &ServiceImpl{
		extractor:       extractor,
		resolver:        resolver,
		writer:          writer,
		bus:             bus,
		defaultTimezone: defaultTimezone,
		timeouts:        timeouts,
	}
}

// CreateEvent runs extraction, timezone lookup, normalization and the calendar write in this order.
// The first failing step ends the chain; nothing is written unless every earlier step succeeded.
func (s *ServiceImpl) CreateEvent(ctx context.Context, cred session.Credential, media extraction.Media) (Result, error) {
	log.Debugf("Creating event from %s (%s, %d bytes) for session %s", media.Kind, media.MimeType, len(media.Data), cred.SessionId)

	extracted, err := s.extract(ctx, media)
	if err != nil {
		return Result{}, err
	}
	if extracted.Failed() {
		log.Infof("No event found in %s: %s", media.Kind, extracted.Error)
		return Result{}, fmt.Errorf("%w: %s", extraction.ErrExtractionFailed, extracted.Error)
	}

	timezone, err := s.timezone(ctx, cred)
	if err != nil {
		return Result{}, err
	}

	normalized, err := event.Normalize(extracted, timezone)
	if err != nil {
		log.Infof("Extracted event %q cannot be scheduled: %v", extracted.Title, err)
		return Result{}, err
	}

	link, err := s.insert(ctx, cred, normalized)
	if err != nil {
		return Result{}, err
	}

	s.publishCreated(ctx, cred, media.Kind, normalized, link)
	return Result{EventLink: link, Event: normalized}, nil
}

func (s *ServiceImpl) extract(ctx context.Context, media extraction.Media) (event.ExtractedEvent, error) {
	ctx, cancel := withTimeout(ctx, s.timeouts.Extraction)
	defer cancel()
	extracted, err := s.extractor.Extract(ctx, media)
	if err != nil {
		log.Errorf("extraction failed: %v", err)
		return event.ExtractedEvent{}, err
	}
	return extracted, nil
}

// timezone returns the calendar's timezone, falling back to the configured default when the lookup
// fails for any reason other than rejected credentials.
func (s *ServiceImpl) timezone(ctx context.Context, cred session.Credential) (string, error) {
	ctx, cancel := withTimeout(ctx, s.timeouts.Timezone)
	defer cancel()
	timezone, err := s.resolver.ResolveTimezone(ctx, cred)
	if err == nil {
		return timezone, nil
	}
	if errors.Is(err, session.ErrUnauthenticated) {
		return "", err
	}
	log.Warnf("using default timezone %s, calendar timezone lookup failed: %v", s.defaultTimezone, err)
	return s.defaultTimezone, nil
}

func (s *ServiceImpl) insert(ctx context.Context, cred session.Credential, normalized event.NormalizedEvent) (string, error) {
	ctx, cancel := withTimeout(ctx, s.timeouts.Calendar)
	defer cancel()
	return s.writer.InsertEvent(ctx, cred, normalized)
}

func (s *ServiceImpl) publishCreated(ctx context.Context, cred session.Credential, kind extraction.Kind, e event.NormalizedEvent, link string) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(event_bus.NewEvent(ctx, event_bus.CalendarEventCreatedType, event_bus.CalendarEventCreated{
		SessionId: cred.SessionId,
		Source:    string(kind),
		Summary:   e.Summary,
		Start:     e.Start.DateTime,
		End:       e.End.DateTime,
		TimeZone:  e.Start.TimeZone,
		Link:      link,
	}))
	if err != nil {
		log.Warnf("failed to publish calendar event creation: %v", err)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
