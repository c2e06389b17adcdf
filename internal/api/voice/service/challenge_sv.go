package voiceService

import (
	"EchoBank/pkg/clock"
	"EchoBank/pkg/speech"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type ChallengeState int

const (
	ChallengeReady ChallengeState = iota
	ChallengeListening
	ChallengeProcessing
	ChallengeLockedOut
)

func (s ChallengeState) String() string {
	switch s {
	case ChallengeReady:
		return "ready"
	case ChallengeListening:
		return "listening"
	case ChallengeProcessing:
		return "processing"
	case ChallengeLockedOut:
		return "locked_out"
	default:
		return fmt.Sprintf("ChallengeState(%d)", int(s))
	}
}

const (
	DefaultAuthThreshold   = 0.7
	DefaultAuthMaxAttempts = 3

	msgAuthPrompt      = "Press Space or the button to begin voice authentication. Speak your passphrase clearly when prompted."
	msgAuthListening   = "Listening for voice passphrase. Please speak your passphrase now"
	msgAuthTimeout     = "Listening timeout. Please try again."
	msgAuthSuccess     = "Voice authentication successful"
	msgAuthLowConf     = "Voice authentication failed. Confidence too low. Please try again."
	msgAuthError       = "Authentication error: %s"
	msgAuthRecognition = "Voice recognition error: %s"
	msgAuthLockedOut   = "Maximum authentication attempts reached. Switching to standard login."
)

var (
	ErrChallengeBusy      = errors.New("voice challenge already in progress")
	ErrChallengeLockedOut = errors.New("voice challenge locked out")
)

// Validator decides whether a recognised passphrase is accepted. The
// confidence is the platform's score and is never estimated here.
type Validator func(transcript string, confidence float64) bool

// ThresholdValidator accepts results strictly above threshold.
func ThresholdValidator(threshold float64) Validator {
	return func(_ string, confidence float64) bool {
		return confidence > threshold
	}
}

type ChallengeOptions struct {
	MaxAttempts int
	Timeout     time.Duration
	Validator   Validator
	OnSuccess   func()
	OnLockout   func()
}

// AuthChallenge is an attempt-limited voice passphrase challenge. Reaching
// the attempt ceiling locks the instance out for good.
type AuthChallenge struct {
	log   *logrus.Logger
	ctx   context.Context
	audio AudioChannel
	auth  Authenticator
	clock clock.Clock
	opts  ChallengeOptions

	opMu sync.Mutex

	mu       sync.Mutex
	state    ChallengeState
	attempts int
	account  string
	session  *speech.Session
	timer    clock.Timer
	armed    uint64
	gen      uint64
	lastErr  error
}

func NewAuthChallenge(
	ctx context.Context,
	log *logrus.Logger,
	audio AudioChannel,
	auth Authenticator,
	clk clock.Clock,
	opts ChallengeOptions,
) *AuthChallenge {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultAuthMaxAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Validator == nil {
		opts.Validator = ThresholdValidator(DefaultAuthThreshold)
	}
	if opts.OnSuccess == nil {
		opts.OnSuccess = func() {}
	}
	if opts.OnLockout == nil {
		opts.OnLockout = func() {}
	}
	return &AuthChallenge{
		log:   log,
		ctx:   ctx,
		audio: audio,
		auth:  auth,
		clock: clk,
		opts:  opts,
	}
}

func (c *AuthChallenge) State() ChallengeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *AuthChallenge) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// LastFailure returns why the most recent counted attempt failed, e.g.
// speech.ErrTimeout or speech.ErrLowConfidence.
func (c *AuthChallenge) LastFailure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Prompt announces how to begin the challenge.
func (c *AuthChallenge) Prompt() {
	c.audio.Announce(msgAuthPrompt, false)
}

// Start opens a passphrase session for account. It is rejected while a
// session is listening or processing and after lockout.
func (c *AuthChallenge) Start(account string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case ChallengeListening, ChallengeProcessing:
		c.mu.Unlock()
		return ErrChallengeBusy
	case ChallengeLockedOut:
		c.mu.Unlock()
		return ErrChallengeLockedOut
	}
	c.gen++
	gen := c.gen
	c.state = ChallengeListening
	c.account = account
	c.armLocked(gen, c.opts.Timeout+cueGrace)
	c.mu.Unlock()

	session, err := c.audio.Listen(speech.ListenRequest{
		Mode:      speech.ModePassphrase,
		Cue:       msgAuthListening,
		CueUrgent: true,
	}, speech.Handlers{
		OnResult:    func(transcript string, confidence float64) { c.onResult(gen, transcript, confidence) },
		OnError:     func(err error) { c.onError(gen, err) },
		OnListening: func() { c.arm(gen, c.opts.Timeout) },
		OnPreempt:   func() { c.reset(gen) },
	})
	if err != nil {
		c.reset(gen)
		c.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(c.ctx),
			"error":      err.Error(),
		}).Warn("Voice authentication unavailable")
		c.audio.Announce(msgVoiceUnsupported, true)
		return err
	}

	c.mu.Lock()
	if c.gen == gen && c.state == ChallengeListening {
		c.session = session
	}
	c.mu.Unlock()
	return nil
}

// Stop abandons a listening attempt without counting it.
func (c *AuthChallenge) Stop() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	s := c.clearLocked()
	c.gen++
	if c.state != ChallengeLockedOut {
		c.state = ChallengeReady
	}
	c.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

func (c *AuthChallenge) clearLocked() *speech.Session {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	s := c.session
	c.session = nil
	return s
}

// take moves attempt gen from Listening to Processing. It returns false
// when gen is stale.
func (c *AuthChallenge) take(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != ChallengeListening {
		return false
	}
	c.clearLocked()
	c.state = ChallengeProcessing
	return true
}

// settle ends attempt gen, which must still be in state from. An attempt
// ending with a non-nil cause is counted and locks the challenge out at
// the ceiling.
func (c *AuthChallenge) settle(gen uint64, from ChallengeState, cause error) (s *speech.Session, locked, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != from {
		return nil, false, false
	}
	s = c.clearLocked()
	c.state = ChallengeReady
	if cause != nil {
		c.lastErr = cause
		c.attempts++
		if c.attempts >= c.opts.MaxAttempts {
			c.attempts = c.opts.MaxAttempts
			c.state = ChallengeLockedOut
			locked = true
		}
	}
	return s, locked, true
}

func (c *AuthChallenge) reset(gen uint64) {
	c.settle(gen, ChallengeListening, nil)
}

// arm (re)starts the timeout of attempt gen. The attempt starts with a
// bound covering the cue and is given the full timeout once the
// microphone opens.
func (c *AuthChallenge) arm(gen uint64, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != ChallengeListening {
		return
	}
	c.armLocked(gen, d)
}

func (c *AuthChallenge) armLocked(gen uint64, d time.Duration) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.armed++
	seq := c.armed
	c.timer = c.clock.AfterFunc(d, func() { c.onTimeout(gen, seq) })
}

func (c *AuthChallenge) onTimeout(gen, seq uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	current := c.armed == seq
	c.mu.Unlock()
	if !current {
		return
	}

	s, locked, ok := c.settle(gen, ChallengeListening, speech.ErrTimeout)
	if !ok {
		return
	}
	if s != nil {
		s.Stop()
	}

	c.log.WithFields(logrus.Fields{
		"request_id": requestIDOf(c.ctx),
	}).Info("Voice passphrase timed out")

	c.audio.Announce(msgAuthTimeout, true)
	c.lockout(locked)
}

func (c *AuthChallenge) onError(gen uint64, err error) {
	_, locked, ok := c.settle(gen, ChallengeListening, err)
	if !ok {
		return
	}

	c.log.WithFields(logrus.Fields{
		"request_id": requestIDOf(c.ctx),
		"error":      err.Error(),
	}).Warn("Voice passphrase recognition failed")

	c.audio.Announce(fmt.Sprintf(msgAuthRecognition, spokenReason(err)), true)
	c.lockout(locked)
}

func (c *AuthChallenge) onResult(gen uint64, transcript string, confidence float64) {
	if !c.take(gen) {
		return
	}

	if !c.opts.Validator(transcript, confidence) {
		c.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(c.ctx),
			"confidence": confidence,
		}).Info("Voice passphrase rejected")

		cause := fmt.Errorf("%w: %.2f", speech.ErrLowConfidence, confidence)
		_, locked, ok := c.settle(gen, ChallengeProcessing, cause)
		if ok {
			c.audio.Announce(msgAuthLowConf, true)
			c.lockout(locked)
		}
		return
	}

	c.audio.Announce(msgAuthSuccess, true)

	c.mu.Lock()
	account := c.account
	c.mu.Unlock()

	if err := c.auth.LoginWithVoice(c.ctx, account, transcript); err != nil {
		c.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(c.ctx),
			"error":      err.Error(),
		}).Error("Voice login failed")

		_, locked, ok := c.settle(gen, ChallengeProcessing, speech.CollaboratorError("voice login", err))
		if ok {
			c.audio.Announce(fmt.Sprintf(msgAuthError, err.Error()), true)
			c.lockout(locked)
		}
		return
	}

	if _, _, ok := c.settle(gen, ChallengeProcessing, nil); ok {
		c.opts.OnSuccess()
	}
}

func (c *AuthChallenge) lockout(locked bool) {
	if !locked {
		return
	}

	c.log.WithFields(logrus.Fields{
		"request_id": requestIDOf(c.ctx),
		"attempts":   c.opts.MaxAttempts,
	}).Warn("Voice authentication locked out")

	c.audio.Announce(msgAuthLockedOut, true)
	c.opts.OnLockout()
}
