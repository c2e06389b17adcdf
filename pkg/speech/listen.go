package speech

import "fmt"

type SessionState int

const (
	StateIdle SessionState = iota
	StateListening
	StateProcessing
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

type ListenRequest struct {
	Mode Mode
	// Lang defaults to DefaultLang.
	Lang string
	// Cue is spoken before the microphone opens.
	Cue       string
	CueUrgent bool
}

// Handlers receive the outcome of one session. At most one of OnResult,
// OnError and OnPreempt is called, and none of them after Session.Stop.
type Handlers struct {
	OnResult func(transcript string, confidence float64)
	OnError  func(err error)
	// OnListening fires once the microphone is open.
	OnListening func()
	// OnPreempt fires when another requester took the device.
	OnPreempt func()
}

// Session is one single-shot recognition attempt.
type Session struct {
	id  uint64
	ch  *Channel
	req ListenRequest
	h   Handlers

	// guarded by ch.mu
	state   SessionState
	micOpen bool
	cueID   uint64
}

func (s *Session) ID() uint64 {
	return s.id
}

func (s *Session) Mode() Mode {
	return s.req.Mode
}

func (s *Session) State() SessionState {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return s.state
}

// Stop aborts the session if it still holds the device. No handler is
// called. Stopping an idle session is a no-op.
func (s *Session) Stop() {
	c := s.ch
	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.abortLocked(s)
}

// Listen starts a new session. Whatever held the device before (another
// session, a recording or an utterance) is stopped first; a preempted
// session gets OnPreempt. When recognition is unsupported it returns
// ErrCapabilityUnavailable and no handler is called.
func (c *Channel) Listen(req ListenRequest, h Handlers) (*Session, error) {
	if !c.RecognitionSupported() {
		return nil, ErrCapabilityUnavailable
	}
	if req.Lang == "" {
		req.Lang = DefaultLang
	}

	c.opMu.Lock()
	preempted := c.releaseLocked()

	c.mu.Lock()
	c.sessionSeq++
	s := &Session{id: c.sessionSeq, ch: c, req: req, h: h, state: StateListening}
	c.active = s
	c.mu.Unlock()

	after := func() {}
	cued := false
	if req.Cue != "" {
		c.status.ShowStatus(Status{Text: req.Cue, Urgent: req.CueUrgent})
		if c.SynthesisSupported() {
			if id := c.speakLocked(req.Cue, req.CueUrgent); id != 0 {
				c.mu.Lock()
				if c.active == s {
					s.cueID = id
				}
				c.mu.Unlock()
				cued = true
			}
		}
	}
	if !cued {
		after = c.openMicLocked(s)
	}
	c.opMu.Unlock()

	preempted.notify()
	after()
	return s, nil
}

// StopListening preempts the session holding the microphone, whoever
// started it. It reports whether a session was stopped.
func (c *Channel) StopListening() bool {
	c.opMu.Lock()

	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil || !c.abortLocked(s) {
		c.opMu.Unlock()
		return false
	}
	c.opMu.Unlock()

	if s.h.OnPreempt != nil {
		s.h.OnPreempt()
	}
	return true
}

// abortLocked detaches s and stops its recognizer or cue. It reports false
// when s no longer held the device. opMu must be held.
func (c *Channel) abortLocked(s *Session) bool {
	c.mu.Lock()
	if c.active != s {
		c.mu.Unlock()
		return false
	}
	micOpen := s.micOpen
	cueSpeaking := s.cueID != 0 && c.speaking == s.cueID
	if cueSpeaking {
		c.speaking = 0
	}
	c.detachLocked(s, StateIdle)
	c.mu.Unlock()

	if micOpen {
		_ = c.rec.Abort(s.id)
	}
	if cueSpeaking {
		_ = c.syn.Cancel()
	}
	return true
}

// Listening reports whether any session holds the device.
func (c *Channel) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// ActiveSession returns the id of the session holding the device, or 0.
func (c *Channel) ActiveSession() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0
	}
	return c.active.id
}

// HandleRecognition delivers a platform event. Events for sessions that no
// longer hold the microphone are dropped.
func (c *Channel) HandleRecognition(ev RecognitionEvent) {
	c.mu.Lock()
	s := c.active
	if s == nil || s.id != ev.SessionID || !s.micOpen {
		c.mu.Unlock()
		return
	}

	switch ev.Kind {
	case EventResult:
		c.detachLocked(s, StateProcessing)
		c.mu.Unlock()

		if s.h.OnResult != nil {
			s.h.OnResult(ev.Transcript, clampConfidence(ev.Confidence))
		}
		c.setState(s, StateIdle)
	case EventError:
		c.detachLocked(s, StateError)
		c.mu.Unlock()
		c.fail(s, ReasonError(ev.Reason))
	case EventEnd:
		c.detachLocked(s, StateError)
		c.mu.Unlock()
		c.fail(s, ReasonError(ReasonNoSpeech))
	default:
		c.mu.Unlock()
	}
}

func (c *Channel) fail(s *Session, err error) {
	if s.h.OnError != nil {
		s.h.OnError(err)
	}
	c.setState(s, StateIdle)
}

func (c *Channel) setState(s *Session, st SessionState) {
	c.mu.Lock()
	s.state = st
	c.mu.Unlock()
}

// detachLocked removes s from the device. c.mu must be held.
func (c *Channel) detachLocked(s *Session, st SessionState) {
	if c.active == s {
		c.active = nil
	}
	s.state = st
}

// openMicLocked starts the recognizer for s. opMu must be held. The
// returned func runs the resulting callback and must be called after opMu
// is released.
func (c *Channel) openMicLocked(s *Session) func() {
	c.mu.Lock()
	if c.active != s {
		c.mu.Unlock()
		return func() {}
	}
	s.micOpen = true
	c.mu.Unlock()

	err := c.rec.Start(RecognitionRequest{
		SessionID:      s.id,
		Mode:           s.req.Mode,
		Lang:           s.req.Lang,
		Continuous:     false,
		InterimResults: false,
	})
	if err != nil {
		c.mu.Lock()
		if c.active != s {
			c.mu.Unlock()
			return func() {}
		}
		c.detachLocked(s, StateError)
		c.mu.Unlock()
		return func() { c.fail(s, fmt.Errorf("%w: %w", ErrRecognition, err)) }
	}

	return func() {
		if s.h.OnListening == nil {
			return
		}
		c.mu.Lock()
		live := c.active == s
		c.mu.Unlock()
		if live {
			s.h.OnListening()
		}
	}
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
