package extraction

import "strings"

type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Media is an uploaded photo or recording held in memory for the duration of one request.
type Media struct {
	Kind     Kind
	MimeType string
	Filename string
	Data     []byte
}

// AcceptsMimeType reports whether mimeType can be processed as kind. Browsers record voice
// notes as video/webm and sniffing reports ogg as application/ogg, both count as audio.
func AcceptsMimeType(kind Kind, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch kind {
	case KindImage:
		return strings.HasPrefix(mimeType, "image/")
	case KindAudio:
		return strings.HasPrefix(mimeType, "audio/") || mimeType == "video/webm" || mimeType == "application/ogg"
	default:
		return false
	}
}
