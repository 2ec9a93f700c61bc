package event

// ExtractedEvent is the untrusted result of reading an appointment out of a photo or a recording.
// Fields the model could not find are absent rather than carrying a placeholder value.
type ExtractedEvent struct {
	Title         string
	StartDateTime Optional[string]
	EndDateTime   Optional[string]
	Location      Optional[string]
	Description   string
	// Error is set when the model reported that no event could be extracted.
	Error string
}

func (e ExtractedEvent) Failed() bool {
	return e.Error != ""
}

// DateTime is a timezone-naive wall clock value together with the timezone it should be read in.
type DateTime struct {
	DateTime string
	TimeZone string
}

// NormalizedEvent is ready to be written to a calendar.
type NormalizedEvent struct {
	Summary     string
	Location    string
	Description string
	Start       DateTime
	End         DateTime
}
