package voiceService

import (
	"EchoBank/pkg/nlp"
	"EchoBank/pkg/speech"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	ActionLogout = "logout"

	introduceTimeout = 3 * time.Second
)

type Audience string

const (
	AudiencePublic Audience = "public"
	AudienceMember Audience = "member"
)

func AudienceFor(authenticated bool) Audience {
	if authenticated {
		return AudienceMember
	}
	return AudiencePublic
}

// CommandEntry maps spoken synonyms onto one action. The first phrase is
// the canonical one read out to the user.
type CommandEntry struct {
	Phrases []string `json:"phrases"`
	Action  string   `json:"action"`
}

func (e CommandEntry) Canonical() string {
	if len(e.Phrases) == 0 {
		return ""
	}
	return e.Phrases[0]
}

type PhraseTable []CommandEntry

var homeCommand = CommandEntry{
	Phrases: []string{"go to home", "navigate to home", "open home", "go to homepage"},
	Action:  "/",
}

func DefaultPhraseTable(audience Audience) PhraseTable {
	if audience != AudienceMember {
		return PhraseTable{
			homeCommand,
			{Phrases: []string{"go to login", "navigate to login", "open login", "go to login page"}, Action: "/login"},
			{Phrases: []string{"go to signup", "navigate to signup", "open signup", "go to signup page"}, Action: "/signup"},
		}
	}

	return PhraseTable{
		homeCommand,
		{Phrases: []string{"go to dashboard", "navigate to dashboard", "open dashboard", "go to dash"}, Action: "/dashboard"},
		{Phrases: []string{"go to accounts", "navigate to accounts", "open accounts", "open view accounts"}, Action: "/dashboard/viewAccounts"},
		{Phrases: []string{"go to transactions", "navigate to transactions", "open transactions", "open view transactions"}, Action: "/dashboard/transactions"},
		{Phrases: []string{"go to profile", "navigate to profile", "open profile", "open view profile"}, Action: "/dashboard/profile"},
		{Phrases: []string{"go to settings", "navigate to settings", "open settings", "open view settings"}, Action: "/dashboard/settings"},
		{Phrases: []string{"log out", "sign out", "logout"}, Action: ActionLogout},
	}
}

// CanonicalPhrases joins the first phrase of every entry, as read out in
// the "Available commands" announcements.
func (t PhraseTable) CanonicalPhrases() string {
	out := make([]string, 0, len(t))
	for _, e := range t {
		out = append(out, e.Canonical())
	}
	return strings.Join(out, ", ")
}

var ErrAmbiguousPhrase = errors.New("phrase table: ambiguous phrase")

// Validate rejects tables where a phrase of one entry occurs inside a
// phrase of another entry, since declaration order would then silently
// decide the match.
func (t PhraseTable) Validate() error {
	for i, e := range t {
		if e.Action == "" || len(e.Phrases) == 0 {
			return fmt.Errorf("phrase table: entry %d is empty", i)
		}
		for j, other := range t {
			if i == j {
				continue
			}
			for _, p := range e.Phrases {
				for _, q := range other.Phrases {
					if nlp.ContainsPhrase(q, p) {
						return fmt.Errorf("%w: %q (%s) inside %q (%s)", ErrAmbiguousPhrase, p, e.Action, q, other.Action)
					}
				}
			}
		}
	}
	return nil
}

// Match returns the first entry with a phrase contained in transcript.
func Match(transcript string, table PhraseTable) (CommandEntry, bool) {
	for _, e := range table {
		for _, p := range e.Phrases {
			if nlp.ContainsPhrase(transcript, p) {
				return e, true
			}
		}
	}
	return CommandEntry{}, false
}

// PhraseSource yields the table for an audience.
type PhraseSource func(audience Audience) PhraseTable

const (
	msgNavAvailable      = "Voice navigation is available. Click the microphone button or press %s to start. Available commands: %s"
	msgNavStarted        = "Voice navigation started. Available commands: %s"
	msgNavStopped        = "Voice navigation stopped"
	msgNavigating        = "Navigating to %s"
	msgLoggedOut         = "Successfully logged out"
	msgLogoutFailed      = "Error logging out. Please try again."
	msgNotRecognized     = "Command not recognized. Please try again."
	msgRecognitionFailed = "Voice recognition error. Please try again."
	msgPermissionDenied  = "Microphone access was denied. Please allow microphone access and try again."
	msgVoiceUnsupported  = "Voice features are not supported in your browser"
)

// CommandRouter drives global voice navigation: a toggle opens a single
// navigation session and the transcript is dispatched through the phrase
// table of the current authentication state.
type CommandRouter struct {
	log    *logrus.Logger
	ctx    context.Context
	audio  AudioChannel
	nav    Navigator
	auth   Authenticator
	source PhraseSource
	hotkey Hotkey

	opMu sync.Mutex

	mu            sync.Mutex
	authenticated bool
	session       *speech.Session
	gen           uint64
}

func NewCommandRouter(
	ctx context.Context,
	log *logrus.Logger,
	audio AudioChannel,
	nav Navigator,
	auth Authenticator,
	source PhraseSource,
	hotkey Hotkey,
) *CommandRouter {
	if source == nil {
		source = DefaultPhraseTable
	}
	return &CommandRouter{
		log:    log,
		ctx:    ctx,
		audio:  audio,
		nav:    nav,
		auth:   auth,
		source: source,
		hotkey: hotkey,
	}
}

func (r *CommandRouter) Table() PhraseTable {
	r.mu.Lock()
	authenticated := r.authenticated
	r.mu.Unlock()
	return r.source(AudienceFor(authenticated))
}

func (r *CommandRouter) Authenticated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authenticated
}

// SetAuthenticated switches phrase tables and announces the commands that
// are now available.
func (r *CommandRouter) SetAuthenticated(authenticated bool) {
	r.setAuthenticated(authenticated)
	r.Introduce()
}

func (r *CommandRouter) setAuthenticated(authenticated bool) {
	r.mu.Lock()
	r.authenticated = authenticated
	r.mu.Unlock()
}

// Introduce announces that voice navigation is available, or that voice
// features are unsupported.
func (r *CommandRouter) Introduce() {
	ctx, cancel := context.WithTimeout(r.ctx, introduceTimeout)
	defer cancel()
	if !r.audio.Initialize(ctx) {
		r.audio.Announce(msgVoiceUnsupported, false)
		return
	}
	r.audio.Announce(fmt.Sprintf(msgNavAvailable, r.hotkey.String(), r.Table().CanonicalPhrases()), false)
}

func (r *CommandRouter) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// HandleKey toggles navigation when the event is the navigation hotkey.
func (r *CommandRouter) HandleKey(ev KeyEvent) bool {
	if !r.hotkey.Matches(ev) {
		return false
	}
	r.Toggle()
	return true
}

// Toggle starts a navigation session when idle and stops it when
// listening. Button, hotkey and timers all converge here.
func (r *CommandRouter) Toggle() {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	current := r.session
	r.session = nil
	r.gen++
	gen := r.gen
	authenticated := r.authenticated
	r.mu.Unlock()

	if current != nil {
		current.Stop()
		r.audio.Announce(msgNavStopped, false)
		return
	}

	table := r.source(AudienceFor(authenticated))
	session, err := r.audio.Listen(speech.ListenRequest{
		Mode: speech.ModeNavigation,
		Cue:  fmt.Sprintf(msgNavStarted, table.CanonicalPhrases()),
	}, speech.Handlers{
		OnResult:  func(transcript string, _ float64) { r.onResult(gen, transcript) },
		OnError:   func(err error) { r.onError(gen, err) },
		OnPreempt: func() { r.release(gen) },
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(r.ctx),
			"error":      err.Error(),
		}).Warn("Voice navigation unavailable")
		r.audio.Announce(msgVoiceUnsupported, false)
		return
	}

	r.mu.Lock()
	if r.gen == gen {
		r.session = session
	}
	r.mu.Unlock()
}

// Stop ends a navigation session without announcing.
func (r *CommandRouter) Stop() {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	current := r.session
	r.session = nil
	r.gen++
	r.mu.Unlock()

	if current != nil {
		current.Stop()
	}
}

// release clears the session of attempt gen. It reports false when the
// attempt is stale.
func (r *CommandRouter) release(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return false
	}
	r.gen++
	r.session = nil
	return true
}

func (r *CommandRouter) onResult(gen uint64, transcript string) {
	if !r.release(gen) {
		return
	}
	_ = r.Dispatch(transcript)
}

func (r *CommandRouter) onError(gen uint64, err error) {
	if !r.release(gen) {
		return
	}

	r.log.WithFields(logrus.Fields{
		"request_id": requestIDOf(r.ctx),
		"error":      err.Error(),
	}).Warn("Navigation recognition failed")

	if errors.Is(err, speech.ErrPermissionDenied) {
		r.audio.Announce(msgPermissionDenied, true)
		return
	}
	r.audio.Announce(msgRecognitionFailed, false)
}

// Dispatch routes a transcript through the current phrase table. A
// transcript matching no phrase yields speech.ErrNoMatch.
func (r *CommandRouter) Dispatch(transcript string) error {
	entry, ok := Match(transcript, r.Table())
	if !ok {
		r.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(r.ctx),
			"transcript": transcript,
		}).Info("Voice command not recognized")
		r.audio.Announce(msgNotRecognized, false)
		return fmt.Errorf("%w: %q", speech.ErrNoMatch, transcript)
	}

	if entry.Action == ActionLogout {
		return r.logout()
	}

	r.audio.Announce(fmt.Sprintf(msgNavigating, entry.Action), false)
	r.nav.NavigateTo(entry.Action)
	return nil
}

func (r *CommandRouter) logout() error {
	if err := r.auth.SignOut(r.ctx); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(r.ctx),
			"error":      err.Error(),
		}).Error("Failed to sign out by voice")
		r.audio.Announce(msgLogoutFailed, true)
		return speech.CollaboratorError("sign out", err)
	}

	r.setAuthenticated(false)

	r.audio.Announce(msgLoggedOut, false)
	r.nav.NavigateTo("/")
	return nil
}
