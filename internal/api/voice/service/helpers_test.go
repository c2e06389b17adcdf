package voiceService

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"EchoBank/pkg/clock"
	"EchoBank/pkg/speech"
	"EchoBank/pkg/speech/mock"

	"github.com/sirupsen/logrus"
)

type harness struct {
	rec      *mock.Recognizer
	syn      *mock.Synthesizer
	status   *mock.StatusSink
	recorder *mock.Recorder
	ch       *speech.Channel
	clk      *clock.Manual
	log      *logrus.Logger
}

func newHarness() *harness {
	h := &harness{
		rec:      &mock.Recognizer{},
		syn:      mock.NewSynthesizer(speech.Voice{Name: "Google US English", Lang: "en-US"}),
		status:   &mock.StatusSink{},
		recorder: &mock.Recorder{},
		clk:      clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		log:      newTestLogger(),
	}
	h.ch = speech.NewChannel(h.rec, h.syn, speech.WithStatusSink(h.status), speech.WithRecorder(h.recorder))
	return h
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// finishCue ends the last utterance, which opens the microphone when it
// was a session cue.
func (h *harness) finishCue() {
	if u, ok := h.syn.LastUtterance(); ok {
		h.ch.HandleSpeechEnd(u.ID)
	}
}

func (h *harness) result(transcript string, confidence float64) {
	h.ch.HandleRecognition(speech.RecognitionEvent{
		SessionID:  h.ch.ActiveSession(),
		Kind:       speech.EventResult,
		Transcript: transcript,
		Confidence: confidence,
	})
}

func (h *harness) fail(reason string) {
	h.ch.HandleRecognition(speech.RecognitionEvent{
		SessionID: h.ch.ActiveSession(),
		Kind:      speech.EventError,
		Reason:    reason,
	})
}

func (h *harness) lastText() string {
	u, ok := h.syn.LastUtterance()
	if !ok {
		return ""
	}
	return u.Text
}

type fakeNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *fakeNavigator) NavigateTo(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *fakeNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

type fieldWrite struct {
	form, name, value string
}

type fakeForm struct {
	mu     sync.Mutex
	writes []fieldWrite
}

func (f *fakeForm) SetField(form, name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, fieldWrite{form, name, value})
}

func (f *fakeForm) Writes() []fieldWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fieldWrite(nil), f.writes...)
}

type loginCall struct {
	account, passphrase string
}

type fakeAuth struct {
	signOutErr error
	loginErr   error

	mu       sync.Mutex
	signOuts int
	logins   []loginCall
}

func (a *fakeAuth) SignOut(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signOuts++
	return a.signOutErr
}

func (a *fakeAuth) LoginWithVoice(_ context.Context, account, passphrase string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins = append(a.logins, loginCall{account, passphrase})
	return a.loginErr
}

func (a *fakeAuth) Logins() []loginCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]loginCall(nil), a.logins...)
}

type fakeCreator struct {
	result ProfileResult
	err    error

	mu      sync.Mutex
	samples []speech.Sample
	users   []string
}

func (c *fakeCreator) CreateVoiceProfile(_ context.Context, userID string, sample speech.Sample) (ProfileResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, userID)
	c.samples = append(c.samples, sample)
	return c.result, c.err
}

var errBoom = errors.New("boom")
