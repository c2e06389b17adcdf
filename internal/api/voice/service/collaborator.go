package voiceService

import (
	"EchoBank/pkg/speech"
	"context"
	"time"
)

// AudioChannel is the shared speaker/microphone arbiter the controllers
// acquire before speaking, listening or recording.
type AudioChannel interface {
	Initialize(ctx context.Context) bool
	Announce(text string, urgent bool) bool
	StopSpeaking()
	Listen(req speech.ListenRequest, h speech.Handlers) (*speech.Session, error)
	StopListening() bool
	Record(ctx context.Context, d time.Duration) (speech.Sample, error)
}

type Navigator interface {
	NavigateTo(path string)
}

type Authenticator interface {
	SignOut(ctx context.Context) error
	LoginWithVoice(ctx context.Context, account, passphrase string) error
}

type FormState interface {
	SetField(form, name, value string)
}

type ProfileResult struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ProfileID string `json:"profile_id,omitempty"`
}

type ProfileCreator interface {
	CreateVoiceProfile(ctx context.Context, userID string, sample speech.Sample) (ProfileResult, error)
}
