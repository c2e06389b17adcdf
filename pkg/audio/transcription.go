package audio

import (
	"bytes"
	"context"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type ITranscriber interface {
	Transcribe(ctx context.Context, data []byte, mimeType string) (string, error)
}

type TranscriptionService struct {
	client   *openai.Client
	language string
}

func NewTranscriptionService(apiKey string) *TranscriptionService {
	client := openai.NewClient(apiKey)
	language := os.Getenv("OPENAI_TRANSCRIPTION_LANGUAGE")
	if language == "" {
		language = "en"
	}
	return &TranscriptionService{client: client, language: language}
}

// Transcribe sends an in-memory recording to Whisper.
func (t *TranscriptionService) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "sample" + Extension(mimeType),
		Reader:   bytes.NewReader(data),
		Language: t.language,
	}

	resp, err := t.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp.Text), nil
}

// Extension maps a recording mime type onto the file extension Whisper
// uses to detect the container format.
func Extension(mimeType string) string {
	base := strings.TrimSpace(strings.SplitN(strings.ToLower(mimeType), ";", 2)[0])
	switch base {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".webm"
	}
}
