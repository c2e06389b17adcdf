package voice

import "EchoBank/pkg/response"

var (
	ErrInvalidAudioFile       = response.NewError(400, "invalid audio file")
	ErrSampleTooLarge         = response.NewError(400, "voice sample too large")
	ErrEmptySample            = response.NewError(400, "voice sample is empty")
	ErrTranscriptionFailed    = response.NewError(502, "failed to transcribe voice sample")
	ErrPassphraseNotDetected  = response.NewError(422, "no passphrase detected in voice sample")
	ErrFailedToUploadSample   = response.NewError(502, "failed to store voice sample")
	ErrVoiceProfileNotFound   = response.NewError(404, "voice profile not found")
	ErrPassphraseMismatch     = response.NewError(401, "voice passphrase does not match")
	ErrAmbiguousPhrases       = response.NewError(400, "phrase table has overlapping phrases")
	ErrInvalidAudience        = response.NewError(400, "audience must be public or member")
	ErrNotAuthenticated       = response.NewError(401, "voice session is not authenticated")
	ErrChallengeNotMounted    = response.NewError(409, "voice authentication screen is not mounted")
	ErrUnknownFrame           = response.NewError(400, "unknown frame type")
	ErrSessionClosed          = response.NewError(410, "voice session closed")
	ErrFailedToSignOut        = response.NewError(500, "failed to sign out")
	ErrFailedToIssueLoginCred = response.NewError(500, "failed to issue voice login token")
)
