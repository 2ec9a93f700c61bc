package appointment

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/klokku/snapcal/internal/rest"
	"github.com/klokku/snapcal/pkg/event"
	"github.com/klokku/snapcal/pkg/extraction"
	"github.com/klokku/snapcal/pkg/google"
	"github.com/klokku/snapcal/pkg/session"
	log "github.com/sirupsen/logrus"
)

const (
	ImageField = "eventImage"
	AudioField = "eventAudio"

	// multipartOverhead is allowed on top of the file limit for boundaries and part headers.
	multipartOverhead = 64 << 10
)

var (
	ErrNoFileProvided       = errors.New("no file provided")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrFileTooLarge         = errors.New("file too large")
)

type createdEventDto struct {
	Message   string `json:"message"`
	EventLink string `json:"eventLink"`
}

type Handler struct {
	service  Service
	maxBytes int64
}

func NewHandler(service Service, maxBytes int64) *Handler {
	return &Handler{service: service, maxBytes: maxBytes}
}

// CreateEventFromImage godoc
// @Summary Create a calendar event from a photo
// @Description Reads the appointment on the uploaded image and adds it to the primary Google calendar.
// @Tags Appointment
// @Accept multipart/form-data
// @Produce json
// @Param eventImage formData file true "Photo of the appointment notice"
// @Success 200 {object} createdEventDto
// @Failure 400 {object} rest.ErrorResponse
// @Failure 401 {object} rest.ErrorResponse
// @Failure 413 {object} rest.ErrorResponse
// @Failure 415 {object} rest.ErrorResponse
// @Failure 422 {object} rest.ErrorResponse
// @Failure 502 {object} rest.ErrorResponse
// @Router /api/create-event-from-image [post]
func (h *Handler) CreateEventFromImage(w http.ResponseWriter, r *http.Request) {
	h.createEvent(w, r, extraction.KindImage, ImageField)
}

// CreateEventFromVoice godoc
// @Summary Create a calendar event from a voice note
// @Description Transcribes the recording, reads the appointment from it and adds it to the primary Google calendar.
// @Tags Appointment
// @Accept multipart/form-data
// @Produce json
// @Param eventAudio formData file true "Voice recording"
// @Success 200 {object} createdEventDto
// @Failure 400 {object} rest.ErrorResponse
// @Failure 401 {object} rest.ErrorResponse
// @Failure 413 {object} rest.ErrorResponse
// @Failure 415 {object} rest.ErrorResponse
// @Failure 422 {object} rest.ErrorResponse
// @Failure 502 {object} rest.ErrorResponse
// @Router /api/create-event-from-voice [post]
func (h *Handler) CreateEventFromVoice(w http.ResponseWriter, r *http.Request) {
	h.createEvent(w, r, extraction.KindAudio, AudioField)
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request, kind extraction.Kind, field string) {
	cred, err := session.CurrentCredential(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	media, err := h.readMedia(w, r, kind, field)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.CreateEvent(r.Context(), cred, media)
	if err != nil {
		writeError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, createdEventDto{
		Message:   "Calendar event created",
		EventLink: result.EventLink,
	})
}

// readMedia streams the multipart body until it finds field and returns that part held in memory.
func (h *Handler) readMedia(w http.ResponseWriter, r *http.Request, kind extraction.Kind, field string) (extraction.Media, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		log.Debugf("request is not multipart: %v", err)
		return extraction.Media{}, ErrNoFileProvided
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return extraction.Media{}, ErrNoFileProvided
		}
		if err != nil {
			return extraction.Media{}, uploadError(err)
		}
		if part.FormName() != field {
			_ = part.Close()
			continue
		}
		media, err := h.readPart(part, kind)
		_ = part.Close()
		return media, err
	}
}

func (h *Handler) readPart(part *multipart.Part, kind extraction.Kind) (extraction.Media, error) {
	data, err := io.ReadAll(io.LimitReader(part, h.maxBytes+1))
	if err != nil {
		return extraction.Media{}, uploadError(err)
	}
	if int64(len(data)) > h.maxBytes {
		return extraction.Media{}, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, h.maxBytes)
	}
	if len(data) == 0 {
		return extraction.Media{}, ErrNoFileProvided
	}

	mimeType := part.Header.Get("Content-Type")
	if mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream") {
		mimeType = http.DetectContentType(data)
		log.Tracef("Sniffed content type %s for %s", mimeType, part.FileName())
	}
	if !extraction.AcceptsMimeType(kind, mimeType) {
		return extraction.Media{}, fmt.Errorf("%w: %s upload cannot be %s", ErrUnsupportedMediaType, kind, mimeType)
	}

	return extraction.Media{
		Kind:     kind,
		MimeType: mimeType,
		Filename: part.FileName(),
		Data:     data,
	}, nil
}

func uploadError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxBytesErr.Limit)
	}
	return fmt.Errorf("%w: %w", ErrNoFileProvided, err)
}

func writeError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("event creation failed: %v", err)
	} else {
		log.Debugf("event creation rejected with %d: %v", status, err)
	}
	rest.WriteError(w, status, message, err)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		return http.StatusUnauthorized, "Please sign in with Google first"
	case errors.Is(err, ErrNoFileProvided):
		return http.StatusBadRequest, "No file was uploaded"
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "This file type is not supported"
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "The file is too large"
	case errors.Is(err, event.ErrMissingStartTime):
		return http.StatusUnprocessableEntity, "No start time was recognized, please be more specific, for example \"tomorrow at 10am\""
	case errors.Is(err, event.ErrMalformedTimestamp):
		return http.StatusUnprocessableEntity, "The recognized date or time is not valid"
	case errors.Is(err, extraction.ErrExtractionFailed):
		return http.StatusUnprocessableEntity, "No appointment could be recognized"
	case errors.Is(err, google.ErrUpstreamWriteFailed):
		return http.StatusBadGateway, "Google Calendar rejected the event"
	default:
		return http.StatusInternalServerError, "Failed to create calendar event"
	}
}
