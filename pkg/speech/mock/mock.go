// Package mock provides in-memory speech platform fakes that record every
// call for assertions.
package mock

import (
	"context"
	"sync"
	"time"

	"EchoBank/pkg/speech"
)

// Recognizer records Start and Abort calls.
type Recognizer struct {
	Unsupported bool
	StartErr    error

	mu      sync.Mutex
	starts  []speech.RecognitionRequest
	aborts  []uint64
	running uint64
}

func (r *Recognizer) Supported() bool {
	return !r.Unsupported
}

func (r *Recognizer) Start(req speech.RecognitionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, req)
	if r.StartErr != nil {
		return r.StartErr
	}
	r.running = req.SessionID
	return nil
}

func (r *Recognizer) Abort(sessionID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborts = append(r.aborts, sessionID)
	if r.running == sessionID {
		r.running = 0
	}
	return nil
}

// Starts returns every recognition request in call order.
func (r *Recognizer) Starts() []speech.RecognitionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]speech.RecognitionRequest, len(r.starts))
	copy(out, r.starts)
	return out
}

// LastStart returns the most recent request and whether there was one.
func (r *Recognizer) LastStart() (speech.RecognitionRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.starts) == 0 {
		return speech.RecognitionRequest{}, false
	}
	return r.starts[len(r.starts)-1], true
}

func (r *Recognizer) Aborts() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.aborts))
	copy(out, r.aborts)
	return out
}

// Running returns the session the recognizer believes is open, or 0.
func (r *Recognizer) Running() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Synthesizer records utterances and cancellations.
type Synthesizer struct {
	Unsupported bool
	SpeakErr    error

	mu       sync.Mutex
	voices   []speech.Voice
	changed  chan struct{}
	spoken   []speech.Utterance
	cancels  int
	speaking bool
}

func NewSynthesizer(voices ...speech.Voice) *Synthesizer {
	return &Synthesizer{
		voices:  voices,
		changed: make(chan struct{}, 1),
	}
}

func (s *Synthesizer) Supported() bool {
	return !s.Unsupported
}

func (s *Synthesizer) Voices() []speech.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]speech.Voice, len(s.voices))
	copy(out, s.voices)
	return out
}

func (s *Synthesizer) VoicesChanged() <-chan struct{} {
	return s.changed
}

// SetVoices replaces the voice list and signals VoicesChanged.
func (s *Synthesizer) SetVoices(voices ...speech.Voice) {
	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()

	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Synthesizer) Speak(u speech.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SpeakErr != nil {
		return s.SpeakErr
	}
	s.spoken = append(s.spoken, u)
	s.speaking = true
	return nil
}

func (s *Synthesizer) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	s.speaking = false
	return nil
}

func (s *Synthesizer) Spoken() []speech.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]speech.Utterance, len(s.spoken))
	copy(out, s.spoken)
	return out
}

// Texts returns the text of every utterance in order.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.spoken))
	for _, u := range s.spoken {
		out = append(out, u.Text)
	}
	return out
}

// LastUtterance returns the most recent utterance and whether there was one.
func (s *Synthesizer) LastUtterance() (speech.Utterance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.spoken) == 0 {
		return speech.Utterance{}, false
	}
	return s.spoken[len(s.spoken)-1], true
}

func (s *Synthesizer) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

// Recorder returns RecordFunc's result, or a silent sample of length d.
type Recorder struct {
	Unsupported bool
	RecordFunc  func(ctx context.Context, d time.Duration) (speech.Sample, error)

	mu    sync.Mutex
	calls []time.Duration
}

func (r *Recorder) Supported() bool {
	return !r.Unsupported
}

func (r *Recorder) Record(ctx context.Context, d time.Duration) (speech.Sample, error) {
	r.mu.Lock()
	r.calls = append(r.calls, d)
	fn := r.RecordFunc
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, d)
	}
	return speech.Sample{Data: []byte("RIFF"), MimeType: "audio/wav", Duration: d}, nil
}

func (r *Recorder) Calls() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.calls))
	copy(out, r.calls)
	return out
}

// StatusSink records every status mirror.
type StatusSink struct {
	mu       sync.Mutex
	statuses []speech.Status
}

func (s *StatusSink) ShowStatus(st speech.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *StatusSink) Statuses() []speech.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]speech.Status, len(s.statuses))
	copy(out, s.statuses)
	return out
}

// Texts returns the mirrored texts in order.
func (s *StatusSink) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, st.Text)
	}
	return out
}

var (
	_ speech.Recognizer  = (*Recognizer)(nil)
	_ speech.Synthesizer = (*Synthesizer)(nil)
	_ speech.Recorder    = (*Recorder)(nil)
	_ speech.StatusSink  = (*StatusSink)(nil)
)
