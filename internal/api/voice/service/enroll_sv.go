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

type EnrollPhase string

const (
	EnrollIdle       EnrollPhase = "idle"
	EnrollRecording  EnrollPhase = "recording"
	EnrollProcessing EnrollPhase = "processing"
	EnrollSuccess    EnrollPhase = "success"
	EnrollError      EnrollPhase = "error"
)

type EnrollProgress struct {
	Percent float64     `json:"percent"`
	Phase   EnrollPhase `json:"phase"`
}

const (
	enrollTick = 100 * time.Millisecond

	msgEnrollSuccess = "Voice profile enrolled successfully"
	msgEnrollFailed  = "Voice enrollment failed. %s"
)

var (
	ErrEnrollmentBusy     = errors.New("voice enrollment already in progress")
	ErrEnrollmentDuration = errors.New("voice enrollment duration must be at least 100ms")
)

// EnrollmentCoordinator records a fixed-length voice sample while driving
// a time-based progress indicator, then hands the sample to the profile
// collaborator.
type EnrollmentCoordinator struct {
	log        *logrus.Logger
	ctx        context.Context
	audio      AudioChannel
	creator    ProfileCreator
	clock      clock.Clock
	onProgress func(EnrollProgress)

	mu       sync.Mutex
	phase    EnrollPhase
	percent  float64
	step     float64
	ticker   clock.Timer
	gen      uint64
	cancelFn context.CancelFunc
}

func NewEnrollmentCoordinator(
	ctx context.Context,
	log *logrus.Logger,
	audio AudioChannel,
	creator ProfileCreator,
	clk clock.Clock,
	onProgress func(EnrollProgress),
) *EnrollmentCoordinator {
	if onProgress == nil {
		onProgress = func(EnrollProgress) {}
	}
	return &EnrollmentCoordinator{
		log:        log,
		ctx:        ctx,
		audio:      audio,
		creator:    creator,
		clock:      clk,
		onProgress: onProgress,
		phase:      EnrollIdle,
	}
}

func (e *EnrollmentCoordinator) Progress() EnrollProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EnrollProgress{Percent: e.percent, Phase: e.phase}
}

// Record captures duration of audio for userID and creates the profile.
// It blocks until the profile collaborator answered.
func (e *EnrollmentCoordinator) Record(userID string, duration time.Duration) (ProfileResult, error) {
	if duration < enrollTick {
		return ProfileResult{}, ErrEnrollmentDuration
	}

	ctx, cancel := context.WithCancel(e.ctx)
	defer cancel()

	e.mu.Lock()
	if e.phase == EnrollRecording || e.phase == EnrollProcessing {
		e.mu.Unlock()
		return ProfileResult{}, ErrEnrollmentBusy
	}
	e.gen++
	gen := e.gen
	e.phase = EnrollRecording
	e.percent = 0
	e.step = 100 / float64(duration/enrollTick)
	e.cancelFn = cancel
	e.ticker = e.clock.AfterFunc(enrollTick, func() { e.tick(gen) })
	e.mu.Unlock()

	e.onProgress(EnrollProgress{Percent: 0, Phase: EnrollRecording})

	sample, err := e.audio.Record(ctx, duration)

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return ProfileResult{}, context.Canceled
	}
	e.stopTickerLocked()
	e.mu.Unlock()

	if err != nil {
		return ProfileResult{}, e.fail(gen, "record", err)
	}

	if !e.transition(gen, 100, EnrollRecording) {
		return ProfileResult{}, context.Canceled
	}
	if !e.transition(gen, 100, EnrollProcessing) {
		return ProfileResult{}, context.Canceled
	}

	result, err := e.creator.CreateVoiceProfile(ctx, userID, sample)
	if err == nil && !result.Success {
		err = errors.New(result.Error)
	}
	if err != nil {
		failure := e.fail(gen, "create profile", err)
		return result, fmt.Errorf("%w: %w", speech.ErrCollaboratorFailure, failure)
	}

	if !e.transition(gen, 100, EnrollSuccess) {
		return result, context.Canceled
	}
	e.audio.Announce(msgEnrollSuccess, false)
	return result, nil
}

// Stop abandons a running enrollment and returns to idle.
func (e *EnrollmentCoordinator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.stopTickerLocked()
	if e.cancelFn != nil {
		e.cancelFn()
		e.cancelFn = nil
	}
	e.phase = EnrollIdle
	e.percent = 0
}

func (e *EnrollmentCoordinator) tick(gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.phase != EnrollRecording {
		e.mu.Unlock()
		return
	}
	next := e.percent + e.step
	if next >= 100 {
		// 100 is reserved for the end of capture
		e.ticker = nil
		e.mu.Unlock()
		return
	}
	e.percent = next
	e.ticker = e.clock.AfterFunc(enrollTick, func() { e.tick(gen) })
	e.mu.Unlock()

	e.onProgress(EnrollProgress{Percent: next, Phase: EnrollRecording})
}

func (e *EnrollmentCoordinator) transition(gen uint64, percent float64, phase EnrollPhase) bool {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return false
	}
	e.percent = percent
	e.phase = phase
	e.mu.Unlock()

	e.onProgress(EnrollProgress{Percent: percent, Phase: phase})
	return true
}

func (e *EnrollmentCoordinator) fail(gen uint64, op string, err error) error {
	e.log.WithFields(logrus.Fields{
		"request_id": requestIDOf(e.ctx),
		"operation":  op,
		"error":      err.Error(),
	}).Error("Voice enrollment failed")

	e.mu.Lock()
	percent := e.percent
	e.mu.Unlock()

	if e.transition(gen, percent, EnrollError) {
		e.audio.Announce(fmt.Sprintf(msgEnrollFailed, err.Error()), true)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (e *EnrollmentCoordinator) stopTickerLocked() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
}
