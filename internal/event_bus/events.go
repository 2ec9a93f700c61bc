package event_bus

import (
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	CredentialRefreshedType  EventType = "session.credential.refreshed"
	CalendarEventCreatedType EventType = "calendar.event.created"
)

// CredentialRefreshed is published when the OAuth token of a session was renewed
// while talking to Google and the new token has to be stored.
type CredentialRefreshed struct {
	SessionId uuid.UUID
	Token     oauth2.Token
}

type CalendarEventCreated struct {
	SessionId uuid.UUID
	Source    string
	Summary   string
	Start     string
	End       string
	TimeZone  string
	Link      string
}
