package appointment

import (
	"context"

	"github.com/klokku/snapcal/pkg/extraction"
	"github.com/klokku/snapcal/pkg/session"
)

// ServiceStub records the media it receives and returns the configured result.
type ServiceStub struct {
	Result   Result
	Err      error
	Received []extraction.Media
}

func (s *ServiceStub) CreateEvent(_ context.Context, _ session.Credential, media extraction.Media) (Result, error) {
	s.Received = append(s.Received, media)
	return s.Result, s.Err
}
