package websocketPkg

import (
	"EchoBank/internal/api/voice"
	"EchoBank/pkg/speech"
	"EchoBank/pkg/utils"
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrClosed = errors.New("websocket bridge closed")

// Conn is the part of a websocket connection the bridge writes to. Both
// gofiber/websocket and gorilla/websocket connections satisfy it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
}

// PlatformSink receives the speech events decoded from browser frames.
type PlatformSink interface {
	HandleRecognition(ev speech.RecognitionEvent)
	HandleSpeechEnd(utteranceID uint64)
}

type Capabilities struct {
	Recognition bool
	Synthesis   bool
	Recorder    bool
}

type recordOutcome struct {
	sample speech.Sample
	err    error
}

// Bridge exposes a connected browser tab as speech platform and UI
// collaborator. Outbound calls become frames; inbound platform frames are
// fed back through HandleFrame.
type Bridge struct {
	conn         Conn
	log          *logrus.Logger
	validator    *validator.Validate
	utils        utils.IUtils
	pingInterval time.Duration
	writeTimeout time.Duration
	recordSlack  time.Duration

	writeMu sync.Mutex

	mu            sync.Mutex
	caps          Capabilities
	voices        []speech.Voice
	voicesChanged chan struct{}
	pending       map[string]chan recordOutcome
	closed        bool
	done          chan struct{}
}

func NewBridge(conn Conn, log *logrus.Logger, validate *validator.Validate, u utils.IUtils) *Bridge {
	return &Bridge{
		conn:          conn,
		log:           log,
		validator:     validate,
		utils:         u,
		pingInterval:  30 * time.Second,
		writeTimeout:  5 * time.Second,
		recordSlack:   10 * time.Second,
		voicesChanged: make(chan struct{}, 1),
		pending:       make(map[string]chan recordOutcome),
		done:          make(chan struct{}),
	}
}

func (b *Bridge) Recognizer() speech.Recognizer {
	return recognizer{b}
}

func (b *Bridge) Synthesizer() speech.Synthesizer {
	return synthesizer{b}
}

func (b *Bridge) Recorder() speech.Recorder {
	return recorder{b}
}

func (b *Bridge) Capabilities() Capabilities {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.caps
}

func (b *Bridge) ShowStatus(s speech.Status) {
	b.send(voice.EventStatus, s)
}

func (b *Bridge) NavigateTo(path string) {
	b.send(voice.EventNavigate, voice.NavigatePayload{Path: path})
}

func (b *Bridge) SetField(form, name, value string) {
	b.send(voice.EventFieldSet, voice.FieldSetPayload{Form: form, Field: name, Value: value})
}

func (b *Bridge) Notify(event string, payload interface{}) error {
	return b.Write(event, payload)
}

func (b *Bridge) send(event string, payload interface{}) {
	if err := b.Write(event, payload); err != nil && !errors.Is(err, ErrClosed) {
		b.log.WithFields(logrus.Fields{
			"event": event,
			"error": err.Error(),
		}).Warn("Failed to write voice frame")
	}
}

// Write sends one frame. Writes are serialised.
func (b *Bridge) Write(event string, payload interface{}) error {
	data, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.conn.SetWriteDeadline(time.Now().Add(b.writeTimeout)); err != nil {
		return err
	}
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

// EncodeFrame renders payload with its fields next to "type". Payloads
// that are not JSON objects are carried under "data".
func EncodeFrame(event string, payload interface{}) ([]byte, error) {
	head, err := json.Marshal(voice.Envelope{Type: event})
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return head, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	body = bytes.TrimSpace(body)

	if len(body) < 2 || body[0] != '{' {
		return json.Marshal(struct {
			Type string      `json:"type"`
			Data interface{} `json:"data"`
		}{event, payload})
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}

	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// DecodeFrame returns the frame type of raw.
func DecodeFrame(raw []byte) (string, error) {
	var env voice.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}
	if env.Type == "" {
		return "", voice.ErrUnknownFrame
	}
	return env.Type, nil
}

// Decode unmarshals raw into dst and validates it.
func (b *Bridge) Decode(raw []byte, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return err
	}
	if b.validator == nil {
		return nil
	}
	return b.validator.Struct(dst)
}

// HandleFrame consumes the platform frames of the browser. It reports false
// for frames that belong to the session rather than the platform.
func (b *Bridge) HandleFrame(typ string, raw []byte, sink PlatformSink) (bool, error) {
	switch typ {
	case voice.FrameHello:
		var f voice.HelloFrame
		if err := b.Decode(raw, &f); err != nil {
			return true, err
		}
		b.mu.Lock()
		b.caps = Capabilities{Recognition: f.Recognition, Synthesis: f.Synthesis, Recorder: f.Recorder}
		b.mu.Unlock()
		b.setVoices(f.Voices)

	case voice.FrameVoicesChanged:
		var f voice.VoicesFrame
		if err := b.Decode(raw, &f); err != nil {
			return true, err
		}
		b.setVoices(f.Voices)

	case voice.FrameRecognitionResult, voice.FrameRecognitionError, voice.FrameRecognitionEnd:
		var f voice.RecognitionFrame
		if err := b.Decode(raw, &f); err != nil {
			return true, err
		}
		ev := speech.RecognitionEvent{SessionID: f.SessionID}
		switch typ {
		case voice.FrameRecognitionResult:
			ev.Kind = speech.EventResult
			ev.Transcript = f.Transcript
			ev.Confidence = f.Confidence
		case voice.FrameRecognitionError:
			ev.Kind = speech.EventError
			ev.Reason = f.Reason
		default:
			ev.Kind = speech.EventEnd
		}
		sink.HandleRecognition(ev)

	case voice.FrameSpeechEnd:
		var f voice.SpeechEndFrame
		if err := b.Decode(raw, &f); err != nil {
			return true, err
		}
		sink.HandleSpeechEnd(f.UtteranceID)

	case voice.FrameRecordDone, voice.FrameRecordError:
		var f voice.RecordFrame
		if err := b.Decode(raw, &f); err != nil {
			return true, err
		}
		b.completeRecord(typ, f)

	default:
		return false, nil
	}
	return true, nil
}

func (b *Bridge) setVoices(voices []speech.Voice) {
	b.mu.Lock()
	b.voices = append([]speech.Voice(nil), voices...)
	b.mu.Unlock()

	if len(voices) == 0 {
		return
	}
	select {
	case b.voicesChanged <- struct{}{}:
	default:
	}
}

func (b *Bridge) completeRecord(typ string, f voice.RecordFrame) {
	b.mu.Lock()
	ch, ok := b.pending[f.RequestID]
	delete(b.pending, f.RequestID)
	b.mu.Unlock()
	if !ok {
		b.log.WithFields(logrus.Fields{
			"record_id": f.RequestID,
		}).Debug("Dropping frame for unknown recording")
		return
	}

	if typ == voice.FrameRecordError {
		ch <- recordOutcome{err: speech.ReasonError(f.Reason)}
		return
	}

	data, err := b.utils.DecodeBase64(f.Audio)
	if err != nil {
		ch <- recordOutcome{err: fmt.Errorf("decode recording: %w", err)}
		return
	}
	ch <- recordOutcome{sample: speech.Sample{Data: data, MimeType: f.Mime}}
}

func (b *Bridge) record(ctx context.Context, d time.Duration) (speech.Sample, error) {
	id, err := b.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		return speech.Sample{}, err
	}

	ch := make(chan recordOutcome, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return speech.Sample{}, ErrClosed
	}
	b.pending[id] = ch
	b.mu.Unlock()

	forget := func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}

	if err := b.Write(voice.EventRecordStart, voice.RecordStartPayload{RequestID: id, DurationMs: d.Milliseconds()}); err != nil {
		forget()
		return speech.Sample{}, err
	}

	deadline := time.NewTimer(d + b.recordSlack)
	defer deadline.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			return speech.Sample{}, out.err
		}
		out.sample.Duration = d
		return out.sample, nil
	case <-ctx.Done():
		forget()
		b.send(voice.EventRecordCancel, voice.RecordStartPayload{RequestID: id})
		return speech.Sample{}, ctx.Err()
	case <-deadline.C:
		forget()
		b.send(voice.EventRecordCancel, voice.RecordStartPayload{RequestID: id})
		return speech.Sample{}, speech.ErrTimeout
	case <-b.done:
		return speech.Sample{}, ErrClosed
	}
}

// KeepAlive pings the browser until ctx ends or a ping fails.
func (b *Bridge) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
			b.writeMu.Lock()
			err := b.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(b.writeTimeout))
			b.writeMu.Unlock()
			if err != nil {
				b.log.WithFields(logrus.Fields{
					"error": err.Error(),
				}).Warn("Ping failed, closing voice bridge")
				b.Close()
				return
			}
		}
	}
}

func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Close fails pending recordings and rejects further writes.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

type recognizer struct{ b *Bridge }

func (r recognizer) Supported() bool {
	return r.b.Capabilities().Recognition
}

func (r recognizer) Start(req speech.RecognitionRequest) error {
	return r.b.Write(voice.EventRecognitionStart, req)
}

func (r recognizer) Abort(sessionID uint64) error {
	return r.b.Write(voice.EventRecognitionAbort, voice.RecognitionAbortPayload{SessionID: sessionID})
}

type synthesizer struct{ b *Bridge }

func (s synthesizer) Supported() bool {
	return s.b.Capabilities().Synthesis
}

func (s synthesizer) Voices() []speech.Voice {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return append([]speech.Voice(nil), s.b.voices...)
}

func (s synthesizer) VoicesChanged() <-chan struct{} {
	return s.b.voicesChanged
}

func (s synthesizer) Speak(u speech.Utterance) error {
	return s.b.Write(voice.EventSpeak, u)
}

func (s synthesizer) Cancel() error {
	return s.b.Write(voice.EventSpeechCancel, nil)
}

type recorder struct{ b *Bridge }

func (r recorder) Supported() bool {
	return r.b.Capabilities().Recorder
}

func (r recorder) Record(ctx context.Context, d time.Duration) (speech.Sample, error) {
	return r.b.record(ctx, d)
}
