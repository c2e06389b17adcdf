package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Channel is the single owner of the audio device. It implements both the
// announcement side (Initialize, Announce, StopSpeaking) and the listening
// side (Listen, StopListening) so that the two are mutually exclusive.
//
// Platform calls are serialised by opMu and made without holding mu.
// Handler callbacks run after both locks are released.
type Channel struct {
	rec      Recognizer
	syn      Synthesizer
	recorder Recorder
	status   StatusSink

	opMu sync.Mutex

	mu           sync.Mutex
	voice        *Voice
	utteranceSeq uint64
	speaking     uint64
	sessionSeq   uint64
	active       *Session
	recording    *recordHold
}

type recordHold struct {
	cancel context.CancelFunc
}

type ChannelOption func(*Channel)

func WithStatusSink(s StatusSink) ChannelOption {
	return func(c *Channel) {
		c.status = s
	}
}

func WithRecorder(r Recorder) ChannelOption {
	return func(c *Channel) {
		c.recorder = r
	}
}

type noopStatus struct{}

func (noopStatus) ShowStatus(Status) {}

func NewChannel(rec Recognizer, syn Synthesizer, opts ...ChannelOption) *Channel {
	c := &Channel{
		rec:    rec,
		syn:    syn,
		status: noopStatus{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) RecognitionSupported() bool {
	return c.rec != nil && c.rec.Supported()
}

func (c *Channel) SynthesisSupported() bool {
	return c.syn != nil && c.syn.Supported()
}

func (c *Channel) RecordingSupported() bool {
	return c.recorder != nil && c.recorder.Supported()
}

// Initialize selects the voice used by Announce. When the platform has not
// enumerated its voices yet it waits for the voices-changed signal until
// ctx is done. It returns false when synthesis is unsupported or no voice
// could be found.
func (c *Channel) Initialize(ctx context.Context) bool {
	if !c.SynthesisSupported() {
		return false
	}

	c.mu.Lock()
	selected := c.voice != nil
	c.mu.Unlock()
	if selected {
		return true
	}

	voices := c.syn.Voices()
	for len(voices) == 0 {
		select {
		case <-ctx.Done():
			return false
		case <-c.syn.VoicesChanged():
			voices = c.syn.Voices()
		}
	}

	v := PreferredVoice(voices)
	c.mu.Lock()
	c.voice = &v
	c.mu.Unlock()
	return true
}

// PreferredVoice picks an English voice from Google or Microsoft, falling
// back to the first voice. voices must not be empty.
func PreferredVoice(voices []Voice) Voice {
	for _, v := range voices {
		if !strings.Contains(strings.ToLower(v.Lang), "en") {
			continue
		}
		if strings.Contains(v.Name, "Google") || strings.Contains(v.Name, "Microsoft") {
			return v
		}
	}
	return voices[0]
}

// Voice returns the selected voice, if any.
func (c *Channel) Voice() (Voice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voice == nil {
		return Voice{}, false
	}
	return *c.voice, true
}

// Announce preempts any listening session or recording, cancels the current
// utterance and speaks text. The text is always mirrored to the status
// sink. It reports whether speech was actually started.
func (c *Channel) Announce(text string, urgent bool) bool {
	c.status.ShowStatus(Status{Text: text, Urgent: urgent})

	c.opMu.Lock()
	preempted := c.releaseLocked()
	started := false
	if text != "" && c.SynthesisSupported() {
		started = c.speakLocked(text, urgent) != 0
	}
	c.opMu.Unlock()

	preempted.notify()
	return started
}

// StopSpeaking cancels outstanding speech without starting new speech. A
// session still waiting for its cue to finish is preempted as well, since
// its microphone would never open.
func (c *Channel) StopSpeaking() {
	c.opMu.Lock()

	c.mu.Lock()
	speaking := c.speaking
	c.speaking = 0
	var cueing *Session
	if s := c.active; s != nil && !s.micOpen && s.cueID != 0 {
		cueing = s
		c.detachLocked(s, StateIdle)
	}
	c.mu.Unlock()

	if speaking != 0 {
		_ = c.syn.Cancel()
	}
	c.opMu.Unlock()

	if cueing != nil && cueing.h.OnPreempt != nil {
		cueing.h.OnPreempt()
	}
}

// Speaking reports whether an utterance is believed to be audible.
func (c *Channel) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking != 0
}

// HandleSpeechEnd is called by the platform when an utterance finished or
// was cancelled. If the utterance was the cue of the active session, the
// microphone is opened now.
func (c *Channel) HandleSpeechEnd(utteranceID uint64) {
	c.opMu.Lock()

	c.mu.Lock()
	if c.speaking == utteranceID {
		c.speaking = 0
	}
	s := c.active
	if s == nil || s.micOpen || s.cueID != utteranceID {
		c.mu.Unlock()
		c.opMu.Unlock()
		return
	}
	c.mu.Unlock()

	after := c.openMicLocked(s)
	c.opMu.Unlock()

	after()
}

// Record captures d of raw audio. It takes the device like any other
// requester: listening and speech stop, and a later Announce or Listen
// cancels the recording.
func (c *Channel) Record(ctx context.Context, d time.Duration) (Sample, error) {
	if !c.RecordingSupported() {
		return Sample{}, ErrCapabilityUnavailable
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hold := &recordHold{cancel: cancel}

	c.opMu.Lock()
	preempted := c.releaseLocked()
	c.mu.Lock()
	c.recording = hold
	c.mu.Unlock()
	c.opMu.Unlock()

	preempted.notify()

	sample, err := c.recorder.Record(ctx, d)

	c.mu.Lock()
	if c.recording == hold {
		c.recording = nil
	}
	c.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Sample{}, fmt.Errorf("%w: %w", ErrAborted, err)
		}
		return Sample{}, err
	}
	return sample, nil
}

// preemption collects the work a release produced so it can run once the
// locks are dropped.
type preemption struct {
	session *Session
}

func (p preemption) notify() {
	if p.session != nil && p.session.h.OnPreempt != nil {
		p.session.h.OnPreempt()
	}
}

// releaseLocked frees the device: the active session is aborted, a running
// recording is cancelled and the current utterance is cancelled. opMu must
// be held.
func (c *Channel) releaseLocked() preemption {
	c.mu.Lock()
	s := c.active
	micOpen := false
	if s != nil {
		micOpen = s.micOpen
		c.detachLocked(s, StateIdle)
	}
	rec := c.recording
	c.recording = nil
	speaking := c.speaking
	c.speaking = 0
	c.mu.Unlock()

	if micOpen {
		_ = c.rec.Abort(s.id)
	}
	if rec != nil {
		rec.cancel()
	}
	if speaking != 0 {
		_ = c.syn.Cancel()
	}
	return preemption{session: s}
}

// speakLocked starts an utterance and returns its id, or 0 on failure.
// opMu must be held and the device must already be released.
func (c *Channel) speakLocked(text string, urgent bool) uint64 {
	c.mu.Lock()
	c.utteranceSeq++
	u := Utterance{
		ID:     c.utteranceSeq,
		Text:   text,
		Lang:   DefaultLang,
		Rate:   1,
		Pitch:  1,
		Volume: 1,
		Urgent: urgent,
	}
	if c.voice != nil {
		u.Voice = c.voice.Name
		u.Lang = c.voice.Lang
	}
	c.speaking = u.ID
	c.mu.Unlock()

	if err := c.syn.Speak(u); err != nil {
		c.mu.Lock()
		if c.speaking == u.ID {
			c.speaking = 0
		}
		c.mu.Unlock()
		return 0
	}
	return u.ID
}
