package voiceService

import (
	"EchoBank/internal/api/voice"
	"EchoBank/internal/entity"
	contextPkg "EchoBank/pkg/context"
	"EchoBank/pkg/speech"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Client is the browser tab behind a voice session: its speech
// capabilities plus the UI effects the controllers trigger.
type Client interface {
	Recognizer() speech.Recognizer
	Synthesizer() speech.Synthesizer
	Recorder() speech.Recorder
	speech.StatusSink
	Navigator
	FormState
	Notify(event string, payload interface{}) error
}

const dashboardPath = "/dashboard"

// VoiceSession wires every controller of one browser tab to a single
// speech.Channel.
type VoiceSession struct {
	id     string
	log    *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	svc    *voiceService
	client Client
	tables map[Audience]PhraseTable

	channel   *speech.Channel
	router    *CommandRouter
	dictation *DictationController
	pages     *PageAnnouncer
	enroll    *EnrollmentCoordinator

	mu        sync.Mutex
	closed    bool
	user      *entity.UserLoginData
	challenge *AuthChallenge
	account   string
}

func (s *voiceService) NewSession(ctx context.Context, client Client) *VoiceSession {
	ctx, cancel := context.WithCancel(ctx)

	id, err := s.utils.NewULIDFromTimestamp(s.clock.Now())
	if err != nil {
		id = requestIDOf(ctx)
	}

	ctx = contextPkg.WithSessionID(ctx, id)

	vs := &VoiceSession{
		id:     id,
		log:    s.log,
		ctx:    ctx,
		cancel: cancel,
		svc:    s,
		client: client,
		tables: s.loadPhraseTables(ctx),
	}

	vs.channel = speech.NewChannel(
		client.Recognizer(),
		client.Synthesizer(),
		speech.WithRecorder(client.Recorder()),
		speech.WithStatusSink(client),
	)
	vs.router = NewCommandRouter(ctx, s.log, vs.channel, client, vs, vs.phraseTable, s.config.Hotkey)
	vs.dictation = NewDictationController(ctx, s.log, vs.channel, client, s.clock, s.config.DictationTimeout)
	vs.pages = NewPageAnnouncer(ctx, s.log, vs.channel, s.config.ProductName)
	vs.enroll = NewEnrollmentCoordinator(ctx, s.log, vs.channel, s, s.clock, vs.onEnrollProgress)

	s.log.WithFields(logrus.Fields{
		"request_id": requestIDOf(ctx),
		"session_id": id,
	}).Info("Voice session opened")

	return vs
}

func (vs *VoiceSession) ID() string {
	return vs.id
}

// Channel exposes the audio arbiter so platform events can be delivered.
func (vs *VoiceSession) Channel() *speech.Channel {
	return vs.channel
}

func (vs *VoiceSession) Router() *CommandRouter {
	return vs.router
}

func (vs *VoiceSession) Dictation() *DictationController {
	return vs.dictation
}

func (vs *VoiceSession) Enrollment() *EnrollmentCoordinator {
	return vs.enroll
}

func (vs *VoiceSession) phraseTable(audience Audience) PhraseTable {
	if t, ok := vs.tables[audience]; ok {
		return t
	}
	return DefaultPhraseTable(audience)
}

func (vs *VoiceSession) User() (entity.UserLoginData, bool) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.user == nil {
		return entity.UserLoginData{}, false
	}
	return *vs.user, true
}

func (vs *VoiceSession) setUser(user *entity.UserLoginData) {
	vs.mu.Lock()
	vs.user = user
	vs.mu.Unlock()
}

// Authenticate establishes who is using the tab and announces the voice
// commands available to them. An empty token means signed out.
func (vs *VoiceSession) Authenticate(token string) error {
	if token == "" {
		vs.setUser(nil)
		vs.router.SetAuthenticated(false)
		return nil
	}

	user, err := vs.svc.VerifyToken(vs.ctx, token)
	if err != nil {
		vs.setUser(nil)
		vs.router.SetAuthenticated(false)
		return err
	}

	vs.setUser(&user)
	vs.router.SetAuthenticated(true)
	return nil
}

// HandleKey routes a key press: the navigation hotkey toggles navigation,
// Space starts the voice challenge while the authentication screen is up.
func (vs *VoiceSession) HandleKey(ev KeyEvent) error {
	if vs.router.HandleKey(ev) {
		return nil
	}
	if ev.Key != " " || ev.Ctrl || ev.Meta || ev.Alt || ev.Shift {
		return nil
	}

	vs.mu.Lock()
	mounted := vs.challenge != nil
	vs.mu.Unlock()
	if !mounted {
		return nil
	}
	// Space during a running attempt is ignored; auth.start still reports it.
	if err := vs.StartChallenge(""); err != nil && !errors.Is(err, ErrChallengeBusy) {
		return err
	}
	return nil
}

func (vs *VoiceSession) ToggleNavigation() {
	vs.router.Toggle()
}

func (vs *VoiceSession) ToggleField(ref FieldRef) {
	vs.dictation.Toggle(ref)
}

func (vs *VoiceSession) MountPage(id string, p Page) bool {
	return vs.pages.Mount(id, p)
}

// UnmountPage re-arms the page announcement and drops dictation bound to
// the page's forms.
func (vs *VoiceSession) UnmountPage(id string) {
	vs.dictation.Stop()
	vs.pages.Unmount(id)
}

// MountAuth puts up a fresh voice challenge for account.
func (vs *VoiceSession) MountAuth(account string) {
	cfg := vs.svc.config
	challenge := NewAuthChallenge(vs.ctx, vs.log, vs.channel, vs, vs.svc.clock, ChallengeOptions{
		MaxAttempts: cfg.AuthMaxAttempts,
		Timeout:     cfg.AuthTimeout,
		Validator:   ThresholdValidator(cfg.AuthThreshold),
		OnSuccess:   vs.onChallengeSuccess,
		OnLockout:   vs.onChallengeLockout,
	})

	vs.mu.Lock()
	previous := vs.challenge
	vs.challenge = challenge
	vs.account = account
	vs.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	challenge.Prompt()
}

func (vs *VoiceSession) UnmountAuth() {
	vs.mu.Lock()
	challenge := vs.challenge
	vs.challenge = nil
	vs.mu.Unlock()

	if challenge != nil {
		challenge.Stop()
	}
}

// StartChallenge begins a passphrase attempt. An empty account falls back
// to the one given when the screen was mounted.
func (vs *VoiceSession) StartChallenge(account string) error {
	vs.mu.Lock()
	challenge := vs.challenge
	if account != "" {
		vs.account = account
	}
	account = vs.account
	vs.mu.Unlock()

	if challenge == nil {
		return voice.ErrChallengeNotMounted
	}
	return challenge.Start(account)
}

func (vs *VoiceSession) Challenge() (*AuthChallenge, bool) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.challenge, vs.challenge != nil
}

// StartEnrollment records a voice sample for the signed-in user in the
// background. The outcome is reported as an enroll.result frame.
func (vs *VoiceSession) StartEnrollment(duration time.Duration) error {
	user, ok := vs.User()
	if !ok {
		return voice.ErrNotAuthenticated
	}
	if duration <= 0 {
		duration = vs.svc.config.EnrollDuration
	}
	switch vs.enroll.Progress().Phase {
	case EnrollRecording, EnrollProcessing:
		return ErrEnrollmentBusy
	}

	go func() {
		result, err := vs.enroll.Record(user.ID, duration)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			result.Success = false
			if result.Error == "" {
				result.Error = err.Error()
			}
		}
		vs.notify(voice.EventEnrollResult, result)
	}()
	return nil
}

// SignOut ends the voice login of the signed-in user.
func (vs *VoiceSession) SignOut(ctx context.Context) error {
	user, ok := vs.User()
	if !ok {
		return voice.ErrNotAuthenticated
	}
	if err := vs.svc.SignOut(ctx, user.ID); err != nil {
		return err
	}
	vs.setUser(nil)
	vs.notify(voice.EventSignedOut, nil)
	return nil
}

// LoginWithVoice completes a passed challenge and hands the token to the
// browser.
func (vs *VoiceSession) LoginWithVoice(ctx context.Context, account, passphrase string) error {
	resp, err := vs.svc.LoginWithVoice(ctx, account, passphrase)
	if err != nil {
		return err
	}
	user := resp.User
	vs.setUser(&user)
	vs.router.setAuthenticated(true)
	vs.notify(voice.EventAuthToken, resp)
	return nil
}

func (vs *VoiceSession) onChallengeSuccess() {
	vs.notify(voice.EventAuthSuccess, nil)
	vs.client.NavigateTo(dashboardPath)
}

func (vs *VoiceSession) onChallengeLockout() {
	attempts := vs.svc.config.AuthMaxAttempts
	vs.notify(voice.EventAuthFallback, voice.AuthFallbackPayload{Attempts: attempts})

	vs.mu.Lock()
	account := vs.account
	vs.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(vs.ctx), alertTimeout)
		defer cancel()
		vs.svc.AlertLockout(ctx, account, attempts)
	}()
}

func (vs *VoiceSession) onEnrollProgress(p EnrollProgress) {
	vs.notify(voice.EventEnrollProgress, p)
}

func (vs *VoiceSession) notify(event string, payload interface{}) {
	if err := vs.client.Notify(event, payload); err != nil {
		vs.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(vs.ctx),
			"session_id": vs.id,
			"event":      event,
			"error":      err.Error(),
		}).Warn("Failed to notify voice client")
	}
}

// Close stops every controller and releases the audio device.
func (vs *VoiceSession) Close() {
	vs.mu.Lock()
	if vs.closed {
		vs.mu.Unlock()
		return
	}
	vs.closed = true
	challenge := vs.challenge
	vs.challenge = nil
	vs.mu.Unlock()

	vs.router.Stop()
	vs.dictation.Stop()
	vs.enroll.Stop()
	if challenge != nil {
		challenge.Stop()
	}
	vs.channel.StopListening()
	vs.channel.StopSpeaking()
	vs.cancel()

	vs.log.WithFields(logrus.Fields{
		"request_id": requestIDOf(vs.ctx),
		"session_id": vs.id,
	}).Info("Voice session closed")
}
