package speech

import (
	"errors"
	"fmt"
)

var (
	ErrCapabilityUnavailable = errors.New("speech: capability unavailable")
	ErrPermissionDenied      = errors.New("speech: microphone permission denied")
	ErrNoMatch               = errors.New("speech: no matching command")
	ErrTimeout               = errors.New("speech: timed out")
	ErrNoSpeech              = errors.New("speech: no speech detected")
	ErrAborted               = errors.New("speech: aborted")
	ErrLowConfidence         = errors.New("speech: confidence below threshold")
	ErrCollaboratorFailure   = errors.New("speech: collaborator failed")
	ErrRecognition           = errors.New("speech: recognition failed")
)

// Platform reason strings, as reported by the Web Speech API.
const (
	ReasonNotSupported      = "not-supported"
	ReasonNotAllowed        = "not-allowed"
	ReasonServiceNotAllowed = "service-not-allowed"
	ReasonNoSpeech          = "no-speech"
	ReasonTimeout           = "timeout"
	ReasonAborted           = "aborted"
	ReasonNetwork           = "network"
)

// RecognitionError carries the platform reason behind a failed session.
type RecognitionError struct {
	Reason string
	Err    error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Reason)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// ReasonError maps a platform reason onto the error taxonomy.
func ReasonError(reason string) error {
	var base error
	switch reason {
	case ReasonNotSupported:
		base = ErrCapabilityUnavailable
	case ReasonNotAllowed, ReasonServiceNotAllowed:
		base = ErrPermissionDenied
	case ReasonNoSpeech:
		base = ErrNoSpeech
	case ReasonTimeout:
		base = ErrTimeout
	case ReasonAborted:
		base = ErrAborted
	default:
		base = ErrRecognition
	}
	return &RecognitionError{Reason: reason, Err: base}
}

// CollaboratorError wraps a failure of an external collaborator so it
// matches ErrCollaboratorFailure while keeping the original message.
func CollaboratorError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCollaboratorFailure, op, err)
}
