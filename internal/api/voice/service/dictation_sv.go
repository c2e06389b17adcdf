package voiceService

import (
	"EchoBank/pkg/clock"
	"EchoBank/pkg/nlp"
	"EchoBank/pkg/speech"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"
)

const (
	msgInputStop     = "input stop"
	msgInputStopped  = "input stopped"
	msgFieldReceived = "%s received"
)

// cueGrace bounds how long a spoken cue may hold off the microphone before
// the attempt is timed out anyway.
const cueGrace = 10 * time.Second

// FieldRef names one input of one form.
type FieldRef struct {
	Form  string `json:"form"`
	Field string `json:"field"`
}

// DictationController captures voice input for one field at a time. The
// listening field is auto-stopped when no result arrives within the
// timeout after the microphone opens, or when the cue never finishes.
type DictationController struct {
	log     *logrus.Logger
	ctx     context.Context
	audio   AudioChannel
	form    FormState
	clock   clock.Clock
	timeout time.Duration

	opMu sync.Mutex

	mu      sync.Mutex
	active  *FieldRef
	session *speech.Session
	timer   clock.Timer
	armed   uint64
	gen     uint64
}

func NewDictationController(
	ctx context.Context,
	log *logrus.Logger,
	audio AudioChannel,
	form FormState,
	clk clock.Clock,
	timeout time.Duration,
) *DictationController {
	return &DictationController{
		log:     log,
		ctx:     ctx,
		audio:   audio,
		form:    form,
		clock:   clk,
		timeout: timeout,
	}
}

// Listening reports whether ref is the field currently listening.
func (d *DictationController) Listening(ref FieldRef) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil && *d.active == ref
}

// ActiveField returns the listening field, if any.
func (d *DictationController) ActiveField() (FieldRef, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return FieldRef{}, false
	}
	return *d.active, true
}

// Toggle starts voice input on ref, or stops it when ref is already
// listening. Any other listening field is stopped first.
func (d *DictationController) Toggle(ref FieldRef) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	sameField := d.active != nil && *d.active == ref
	previous := d.resetLocked()
	d.gen++
	gen := d.gen
	if !sameField {
		d.active = &ref
		d.armLocked(gen, d.timeout+cueGrace)
	}
	d.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	if sameField {
		d.audio.Announce(msgInputStop, false)
		return
	}

	mode, _ := fieldMode(ref.Field)
	session, err := d.audio.Listen(speech.ListenRequest{
		Mode: mode,
		Cue:  FieldLabel(ref.Field),
	}, speech.Handlers{
		OnResult:    func(transcript string, _ float64) { d.onResult(gen, transcript) },
		OnError:     func(err error) { d.onError(gen, err) },
		OnListening: func() { d.arm(gen, d.timeout) },
		OnPreempt:   func() { d.finish(gen) },
	})
	if err != nil {
		d.finish(gen)
		d.log.WithFields(logrus.Fields{
			"request_id": requestIDOf(d.ctx),
			"field":      ref.Field,
			"error":      err.Error(),
		}).Warn("Field dictation unavailable")
		d.audio.Announce(msgVoiceUnsupported, false)
		return
	}

	d.mu.Lock()
	if d.gen == gen {
		d.session = session
	}
	d.mu.Unlock()
}

// Stop ends dictation silently, e.g. when the form unmounts.
func (d *DictationController) Stop() {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	previous := d.resetLocked()
	d.gen++
	d.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
}

// resetLocked returns to idle, cancelling the auto-stop timer, and hands
// back the session that still has to be stopped. d.mu must be held.
func (d *DictationController) resetLocked() *speech.Session {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	s := d.session
	d.session = nil
	d.active = nil
	return s
}

// finish ends attempt gen. It returns the field and session of the
// attempt, or false when gen is stale.
func (d *DictationController) finish(gen uint64) (FieldRef, *speech.Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen || d.active == nil {
		return FieldRef{}, nil, false
	}
	ref := *d.active
	s := d.resetLocked()
	d.gen++
	return ref, s, true
}

func (d *DictationController) arm(gen uint64, timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen || d.active == nil {
		return
	}
	d.armLocked(gen, timeout)
}

func (d *DictationController) armLocked(gen uint64, timeout time.Duration) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.armed++
	seq := d.armed
	d.timer = d.clock.AfterFunc(timeout, func() { d.onTimeout(gen, seq) })
}

func (d *DictationController) onTimeout(gen, seq uint64) {
	d.opMu.Lock()
	defer d.opMu.Unlock()

	d.mu.Lock()
	current := d.armed == seq
	d.mu.Unlock()
	if !current {
		return
	}

	_, s, ok := d.finish(gen)
	if !ok {
		return
	}
	if s != nil {
		s.Stop()
	}
	d.audio.Announce(msgInputStopped, false)
}

func (d *DictationController) onResult(gen uint64, transcript string) {
	ref, _, ok := d.finish(gen)
	if !ok {
		return
	}

	_, kind := fieldMode(ref.Field)
	value := nlp.Normalize(transcript, kind)
	d.form.SetField(ref.Form, ref.Field, value)

	d.log.WithFields(logrus.Fields{
		"request_id": requestIDOf(d.ctx),
		"form":       ref.Form,
		"field":      ref.Field,
	}).Debug("Field filled by voice")

	d.audio.Announce(fmt.Sprintf(msgFieldReceived, FieldLabel(ref.Field)), false)
}

func (d *DictationController) onError(gen uint64, err error) {
	ref, _, ok := d.finish(gen)
	if !ok {
		return
	}

	d.log.WithFields(logrus.Fields{
		"request_id": requestIDOf(d.ctx),
		"field":      ref.Field,
		"error":      err.Error(),
	}).Warn("Field dictation failed")

	if errors.Is(err, speech.ErrPermissionDenied) {
		d.audio.Announce(msgPermissionDenied, true)
		return
	}
	d.audio.Announce(msgRecognitionFailed, false)
}

func fieldMode(field string) (speech.Mode, nlp.Kind) {
	if strings.Contains(strings.ToLower(field), "email") {
		return speech.ModeEmail, nlp.KindEmail
	}
	return speech.ModePlain, nlp.KindPlain
}

// FieldLabel turns a field name such as "confirmPassword" or
// "confirm_password" into the spoken "confirm password".
func FieldLabel(field string) string {
	var b strings.Builder
	for i, r := range field {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteRune(' ')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
