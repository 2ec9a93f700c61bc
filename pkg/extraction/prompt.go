package extraction

import (
	"fmt"
	"time"
)

const notAvailable = "N/A"

const instructionTemplate = `You read appointment notices and return exactly one JSON object describing the appointment.
The current date and time is %s (%s). Resolve relative expressions such as "tomorrow" or "next Monday" against it.

Return these keys:
- "title": short title of the appointment
- "startDateTime": local start time formatted as YYYY-MM-DDTHH:mm:ss without any UTC offset
- "endDateTime": local end time in the same format
- "location": where the appointment takes place
- "description": any further details worth keeping

Use "N/A" for every value that is not stated.
If the input does not describe an appointment at all, return {"error": "<short reason>"} instead.
Return JSON only, without Markdown.`

func buildInstruction(now time.Time) string {
	return fmt.Sprintf(instructionTemplate, now.Format("2006-01-02T15:04:05 Monday"), now.Location().String())
}

func transcriptMessage(transcript string) string {
	return "Transcript of a voice note:\n" + transcript
}
