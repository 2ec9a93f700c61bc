package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klokku/snapcal/pkg/event"
	"github.com/klokku/snapcal/pkg/session"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
)

var ErrTimezoneLookupFailed = errors.New("could not read calendar timezone")

// ResolveTimezone returns the IANA timezone configured for the user's calendars.
func (s *Service) ResolveTimezone(ctx context.Context, cred session.Credential) (string, error) {
	service, err := s.calendarService(ctx, cred)
	if err != nil {
		return "", err
	}

	log.Debug("Fetching calendar timezone setting")
	setting, err := service.Settings.Get("timezone").Context(ctx).Do()
	if err != nil {
		err := classify(err, ErrTimezoneLookupFailed)
		log.Error(err)
		return "", err
	}
	if _, err := time.LoadLocation(setting.Value); err != nil || setting.Value == "" {
		err := fmt.Errorf("%w: unknown timezone %q", ErrTimezoneLookupFailed, setting.Value)
		log.Error(err)
		return "", err
	}
	log.Debugf("Calendar timezone is %s", setting.Value)
	return setting.Value, nil
}

// InsertEvent creates the event in the primary calendar and returns its web link.
func (s *Service) InsertEvent(ctx context.Context, cred session.Credential, e event.NormalizedEvent) (string, error) {
	service, err := s.calendarService(ctx, cred)
	if err != nil {
		return "", err
	}

	log.Debugf("Inserting event %q at %s (%s) into calendar %s", e.Summary, e.Start.DateTime, e.Start.TimeZone, primaryCalendarId)
	created, err := service.Events.Insert(primaryCalendarId, toGoogleEvent(e)).Context(ctx).Do()
	if err != nil {
		err := classify(err, ErrUpstreamWriteFailed)
		log.Error(err)
		return "", err
	}
	log.Infof("Created calendar event %s", created.Id)
	return created.HtmlLink, nil
}

func toGoogleEvent(e event.NormalizedEvent) *gcal.Event {
	return &gcal.Event{
		Summary:     e.Summary,
		Location:    e.Location,
		Description: e.Description,
		Start: &gcal.EventDateTime{
			DateTime: e.Start.DateTime,
			TimeZone: e.Start.TimeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: e.End.DateTime,
			TimeZone: e.End.TimeZone,
		},
	}
}
