package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klokku/snapcal/internal/utils"
	"github.com/klokku/snapcal/pkg/event"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

var (
	ErrExtractionFailed = errors.New("could not extract an event")
	ErrUnsupportedMedia = errors.New("unsupported media kind")
)

type Config struct {
	BaseUrl string
	ApiKey  string
	Model   string
	// TranscriptionBaseUrl selects a separate speech to text provider. Empty means the chat provider
	// also serves transcriptions.
	TranscriptionBaseUrl string
	// TranscriptionApiKey defaults to ApiKey.
	TranscriptionApiKey string
	TranscriptionModel  string
	// Location is used to tell the model what "now" is.
	Location *time.Location
}

// Extractor reads appointments out of images and voice recordings with an OpenAI compatible API.
type Extractor struct {
	client              *openai.Client
	transcriptionClient *openai.Client
	model               string
	transcriptionModel string
	location           *time.Location
	clock              utils.Clock
}

func NewExtractor(cfg Config, clock utils.Clock) *Extractor {
	client := newClient(cfg.BaseUrl, cfg.ApiKey)
	transcriptionClient := client
	if cfg.TranscriptionBaseUrl != "" {
		apiKey := cfg.TranscriptionApiKey
		if apiKey == "" {
			apiKey = cfg.ApiKey
		}
		transcriptionClient = newClient(cfg.TranscriptionBaseUrl, apiKey)
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	return &Extractor{
		client:              client,
		transcriptionClient: transcriptionClient,
		model:               cfg.Model,
		transcriptionModel:  cfg.TranscriptionModel,
		location:            location,
		clock:               clock,
	}
}

func newClient(baseUrl string, apiKey string) *openai.Client {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseUrl != "" {
		clientConfig.BaseURL = strings.TrimRight(baseUrl, "/")
	}
	return openai.NewClientWithConfig(clientConfig)
}

// Extract returns the appointment found in media. A model reporting that there is no appointment is
// not an error here; the returned event carries Error instead.
func (e *Extractor) Extract(ctx context.Context, media Media) (event.ExtractedEvent, error) {
	if len(media.Data) == 0 {
		return event.ExtractedEvent{}, fmt.Errorf("%w: empty %s", ErrExtractionFailed, media.Kind)
	}
	instruction := buildInstruction(e.clock.Now().In(e.location))

	var message openai.ChatCompletionMessage
	switch media.Kind {
	case KindImage:
		message = imageMessage(instruction, media)
	case KindAudio:
		transcript, err := e.transcribe(ctx, media)
		if err != nil {
			return event.ExtractedEvent{}, err
		}
		message = openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: transcriptMessage(transcript),
		}
	default:
		return event.ExtractedEvent{}, fmt.Errorf("%w: %q", ErrUnsupportedMedia, media.Kind)
	}

	content, err := e.complete(ctx, instruction, message)
	if err != nil {
		return event.ExtractedEvent{}, err
	}
	extracted, err := parseResponse(content)
	if err != nil {
		return event.ExtractedEvent{}, err
	}
	log.Debugf("Extracted event %q starting %q from %s", extracted.Title, extracted.StartDateTime.OrElse(notAvailable), media.Kind)
	return extracted, nil
}

func imageMessage(instruction string, media Media) openai.ChatCompletionMessage {
	dataUrl := "data:" + media.MimeType + ";base64," + base64.StdEncoding.EncodeToString(media.Data)
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: "Extract the appointment shown in this image.",
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataUrl,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	}
}

func (e *Extractor) transcribe(ctx context.Context, media Media) (string, error) {
	filename := media.Filename
	if filename == "" {
		filename = "recording" + audioExtension(media.MimeType)
	}
	response, err := e.transcriptionClient.CreateTranscription(ctx, openai.AudioRequest{
		Model:    e.transcriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(media.Data),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		err := fmt.Errorf("%w: transcription failed: %w", ErrExtractionFailed, err)
		log.Error(err)
		return "", err
	}
	transcript := strings.TrimSpace(response.Text)
	if transcript == "" {
		return "", fmt.Errorf("%w: recording contains no speech", ErrExtractionFailed)
	}
	log.Tracef("Transcript: %s", transcript)
	return transcript, nil
}

func (e *Extractor) complete(ctx context.Context, instruction string, message openai.ChatCompletionMessage) (string, error) {
	response, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			message,
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		err := fmt.Errorf("%w: model request failed: %w", ErrExtractionFailed, err)
		log.Error(err)
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response from model", ErrExtractionFailed)
	}
	return response.Choices[0].Message.Content, nil
}

func audioExtension(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mp4"), strings.Contains(mimeType, "m4a"):
		return ".m4a"
	default:
		return ".mp3"
	}
}
