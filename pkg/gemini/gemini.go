package gemini

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const transcribePrompt = "Transcribe the speech in this recording verbatim. Reply with the spoken words only, without punctuation commentary or quotes."

var ErrEmptyResponse = errors.New("no response from Gemini API")

// Transcriber converts recordings to text with a Gemini model. It serves as
// the enrolment transcriber when no Whisper key is configured.
type Transcriber struct {
	modelName string
	client    *genai.Client
}

func NewTranscriber(ctx context.Context) (*Transcriber, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	modelName := os.Getenv("GEMINI_MODEL_NAME")
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &Transcriber{
		modelName: modelName,
		client:    client,
	}, nil
}

func (g *Transcriber) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)

	audio := genai.Blob{MIMEType: baseMime(mimeType), Data: data}
	res, err := model.GenerateContent(ctx, genai.Text(transcribePrompt), audio)
	if err != nil {
		return "", err
	}

	return responseText(res)
}

func responseText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("unexpected response format from Gemini API")
	}
	return strings.TrimSpace(b.String()), nil
}

// baseMime drops codec parameters such as "audio/webm;codecs=opus".
func baseMime(mimeType string) string {
	base := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	if base == "" {
		return "audio/webm"
	}
	return strings.ToLower(base)
}

func (g *Transcriber) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
