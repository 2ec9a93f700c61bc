package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/klokku/snapcal/pkg/event"
	log "github.com/sirupsen/logrus"
)

var codeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

type rawEvent struct {
	Title         *string `json:"title"`
	StartDateTime *string `json:"startDateTime"`
	EndDateTime   *string `json:"endDateTime"`
	Location      *string `json:"location"`
	Description   *string `json:"description"`
	Error         *string `json:"error"`
}

// parseResponse decodes the model output. This is the only place the "N/A" placeholder is understood.
func parseResponse(content string) (event.ExtractedEvent, error) {
	content = strings.TrimSpace(content)
	if matches := codeFence.FindStringSubmatch(content); len(matches) > 1 {
		content = matches[1]
	}

	var raw rawEvent
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		log.Debugf("undecodable model output: %q", content)
		return event.ExtractedEvent{}, fmt.Errorf("%w: model output is not valid JSON: %v", ErrExtractionFailed, err)
	}

	extracted := event.ExtractedEvent{
		Title:         text(raw.Title),
		StartDateTime: optional(raw.StartDateTime),
		EndDateTime:   optional(raw.EndDateTime),
		Location:      optional(raw.Location),
		Description:   text(raw.Description),
		Error:         text(raw.Error),
	}
	return extracted, nil
}

func optional(value *string) event.Optional[string] {
	if value == nil {
		return event.None[string]()
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" || strings.EqualFold(trimmed, notAvailable) {
		return event.None[string]()
	}
	return event.Some(trimmed)
}

func text(value *string) string {
	return optional(value).OrElse("")
}
