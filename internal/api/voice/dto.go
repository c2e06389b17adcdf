package voice

import (
	"EchoBank/internal/entity"
	"EchoBank/pkg/speech"
	"time"
)

// Frames sent by the browser.
const (
	FrameHello             = "hello"
	FrameVoicesChanged     = "voices.changed"
	FrameAuth              = "auth"
	FrameKey               = "key"
	FrameNavToggle         = "nav.toggle"
	FrameFieldToggle       = "field.toggle"
	FramePageMount         = "page.mount"
	FramePageUnmount       = "page.unmount"
	FrameRecognitionResult = "recognition.result"
	FrameRecognitionError  = "recognition.error"
	FrameRecognitionEnd    = "recognition.end"
	FrameSpeechEnd         = "speech.end"
	FrameRecordDone        = "record.done"
	FrameRecordError       = "record.error"
	FrameAuthStart         = "auth.start"
	FrameAuthMount         = "auth.mount"
	FrameAuthUnmount       = "auth.unmount"
	FrameEnrollStart       = "enroll.start"
)

// Frames sent to the browser.
const (
	EventSpeak            = "speak"
	EventSpeechCancel     = "speech.cancel"
	EventRecognitionStart = "recognition.start"
	EventRecognitionAbort = "recognition.abort"
	EventRecordStart      = "record.start"
	EventRecordCancel     = "record.cancel"
	EventStatus           = "status"
	EventNavigate         = "navigate"
	EventFieldSet         = "field.set"
	EventAuthToken        = "auth.token"
	EventAuthSuccess      = "auth.success"
	EventAuthFallback     = "auth.fallback"
	EventSignedOut        = "signed_out"
	EventEnrollProgress   = "enroll.progress"
	EventEnrollResult     = "enroll.result"
	EventError            = "error"
)

// Envelope is the common shape of every frame: a type plus the fields of
// that type's payload at the same level.
type Envelope struct {
	Type string `json:"type" validate:"required"`
}

type HelloFrame struct {
	Recognition bool           `json:"recognition"`
	Synthesis   bool           `json:"synthesis"`
	Recorder    bool           `json:"recorder"`
	Voices      []speech.Voice `json:"voices"`
}

type VoicesFrame struct {
	Voices []speech.Voice `json:"voices"`
}

type AuthFrame struct {
	Token string `json:"token"`
}

type KeyFrame struct {
	Key   string `json:"key" validate:"required"`
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Meta  bool   `json:"meta"`
	Alt   bool   `json:"alt"`
}

type FieldFrame struct {
	Form  string `json:"form" validate:"required"`
	Field string `json:"field" validate:"required"`
}

type PageFrame struct {
	Page    string   `json:"page" validate:"required"`
	Title   string   `json:"title,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

type RecognitionFrame struct {
	SessionID  uint64  `json:"session_id" validate:"required"`
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reason     string  `json:"reason"`
}

type SpeechEndFrame struct {
	UtteranceID uint64 `json:"utterance_id" validate:"required"`
}

type RecordFrame struct {
	RequestID string `json:"request_id" validate:"required"`
	Audio     string `json:"audio,omitempty" validate:"omitempty,base64"`
	Mime      string `json:"mime,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type AuthStartFrame struct {
	Account string `json:"account" validate:"omitempty,email"`
}

type EnrollFrame struct {
	DurationMs int `json:"duration_ms" validate:"omitempty,min=100,max=60000"`
}

type RecognitionAbortPayload struct {
	SessionID uint64 `json:"session_id"`
}

type RecordStartPayload struct {
	RequestID  string `json:"request_id"`
	DurationMs int64  `json:"duration_ms"`
}

type NavigatePayload struct {
	Path string `json:"path"`
}

type FieldSetPayload struct {
	Form  string `json:"form"`
	Field string `json:"field"`
	Value string `json:"value"`
}

type AuthFallbackPayload struct {
	Attempts int `json:"attempts"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
	Frame   string `json:"frame,omitempty"`
}

// HTTP

type NormalizeRequest struct {
	Text string `json:"text" validate:"required,max=500"`
	Kind string `json:"kind" validate:"omitempty,oneof=plain email"`
}

type NormalizeResponse struct {
	Input  string `json:"input"`
	Kind   string `json:"kind"`
	Output string `json:"output"`
}

type PhraseEntry struct {
	Phrases []string `json:"phrases" validate:"required,min=1,dive,required,max=100"`
	Action  string   `json:"action" validate:"required,max=255"`
}

type PhraseTableResponse struct {
	Audience string        `json:"audience"`
	Commands []PhraseEntry `json:"commands"`
}

type ReplacePhraseTableRequest struct {
	Audience string        `json:"audience" validate:"required,oneof=public member"`
	Commands []PhraseEntry `json:"commands" validate:"required,min=1,dive"`
}

type VoiceLoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Passphrase string `json:"passphrase" validate:"required,max=500"`
}

type VoiceLoginResponse struct {
	AccessToken string               `json:"access_token"`
	ExpiresAt   int64                `json:"expires_at"`
	User        entity.UserLoginData `json:"user"`
}

type VoiceProfileResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	SampleURL string    `json:"sample_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
