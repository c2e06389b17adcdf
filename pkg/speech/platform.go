// Package speech arbitrates the single audio device shared by speech
// synthesis (announcements) and speech recognition (listening sessions).
//
// The device is owned by a Channel. At any instant it is either silent,
// speaking one utterance, or listening for one session; starting either
// activity cancels the other. The platform capabilities themselves
// (recognizer, synthesizer, recorder) are injected, so the arbitration
// logic runs without a browser.
//
// Platform implementations must never deliver events from inside a call
// made by the Channel (Start, Abort, Speak, Cancel); events are delivered
// later through HandleRecognition and HandleSpeechEnd.
package speech

import (
	"context"
	"time"
)

// Mode selects the locale and grammar hint of a recognition pass.
type Mode string

const (
	ModeNavigation Mode = "navigation"
	ModeEmail      Mode = "email"
	ModePlain      Mode = "plain"
	ModePassphrase Mode = "passphrase"
)

const DefaultLang = "en-US"

type RecognitionRequest struct {
	SessionID      uint64 `json:"session_id"`
	Mode           Mode   `json:"mode"`
	Lang           string `json:"lang"`
	Continuous     bool   `json:"continuous"`
	InterimResults bool   `json:"interim_results"`
}

type Recognizer interface {
	Supported() bool
	Start(req RecognitionRequest) error
	// Abort ends the given session without a result.
	Abort(sessionID uint64) error
}

type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

type Utterance struct {
	ID     uint64  `json:"utterance_id"`
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Lang   string  `json:"lang,omitempty"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
	Urgent bool    `json:"urgent"`
}

type Synthesizer interface {
	Supported() bool
	// Voices returns the voices enumerated so far, possibly none yet.
	Voices() []Voice
	// VoicesChanged is signalled whenever the platform re-enumerates voices.
	VoicesChanged() <-chan struct{}
	Speak(u Utterance) error
	// Cancel drops the current utterance. It is a no-op when silent.
	Cancel() error
}

// Sample is a captured chunk of microphone audio.
type Sample struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// Recorder captures raw audio for a fixed duration, independent of
// recognition. Used for voice enrolment.
type Recorder interface {
	Supported() bool
	Record(ctx context.Context, d time.Duration) (Sample, error)
}

// Status mirrors an announcement for sighted users.
type Status struct {
	Text   string `json:"text"`
	Urgent bool   `json:"urgent"`
}

type StatusSink interface {
	ShowStatus(s Status)
}

type EventKind string

const (
	EventResult EventKind = "result"
	EventError  EventKind = "error"
	EventEnd    EventKind = "end"
)

// RecognitionEvent is a platform callback for one recognition session.
type RecognitionEvent struct {
	SessionID  uint64
	Kind       EventKind
	Transcript string
	Confidence float64
	Reason     string
}
