package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LocalLayout is the wire format for wall clock timestamps without an offset.
const LocalLayout = "2006-01-02T15:04:05"

// DefaultDuration is applied when the end of an event is unknown.
const DefaultDuration = time.Hour

var (
	ErrMissingStartTime   = errors.New("event has no start time")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrInvalidTimeRange   = fmt.Errorf("%w: end is not after start", ErrMalformedTimestamp)
)

// acceptedLayouts are tried in order. None of them carries an offset, values like
// "2025-09-22T14:00:00Z" or "...+08:00" are rejected.
var acceptedLayouts = []string{
	LocalLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// Normalize turns an extracted event into one that can be persisted in the given timezone.
func Normalize(extracted ExtractedEvent, timezone string) (NormalizedEvent, error) {
	if extracted.Failed() {
		return NormalizedEvent{}, fmt.Errorf("%w: extraction reported %q", ErrMissingStartTime, extracted.Error)
	}
	startText, ok := extracted.StartDateTime.Get()
	if !ok {
		return NormalizedEvent{}, ErrMissingStartTime
	}

	start, err := ParseLocal(startText)
	if err != nil {
		return NormalizedEvent{}, fmt.Errorf("start: %w", err)
	}

	end := start.Add(DefaultDuration)
	if endText, ok := extracted.EndDateTime.Get(); ok {
		end, err = ParseLocal(endText)
		if err != nil {
			return NormalizedEvent{}, fmt.Errorf("end: %w", err)
		}
		if !end.After(start) {
			return NormalizedEvent{}, fmt.Errorf("%w (%s - %s)", ErrInvalidTimeRange, startText, endText)
		}
	}

	return NormalizedEvent{
		Summary:     extracted.Title,
		Location:    extracted.Location.OrElse(""),
		Description: extracted.Description,
		Start:       DateTime{DateTime: FormatLocal(start), TimeZone: timezone},
		End:         DateTime{DateTime: FormatLocal(end), TimeZone: timezone},
	}, nil
}

// ParseLocal parses a wall clock timestamp. The result is in UTC only as a carrier,
// no timezone conversion is ever applied to it.
func ParseLocal(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, value)
}

func FormatLocal(t time.Time) string {
	return t.Format(LocalLayout)
}
