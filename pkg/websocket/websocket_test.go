package websocketPkg

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"EchoBank/internal/api/voice"
	"EchoBank/pkg/speech"
	"EchoBank/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	pings  int
	err    error
	wrote  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{wrote: make(chan struct{}, 64)}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	c.mu.Unlock()
	select {
	case c.wrote <- struct{}{}:
	default:
	}
	return nil
}

func (c *fakeConn) WriteControl(int, []byte, time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.err
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) last() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	var out map[string]interface{}
	_ = json.Unmarshal(c.frames[len(c.frames)-1], &out)
	return out
}

// waitType blocks until a frame of typ has been written.
func (c *fakeConn) waitType(t *testing.T, typ string) map[string]interface{} {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		for _, raw := range c.frames {
			var f map[string]interface{}
			if json.Unmarshal(raw, &f) == nil && f["type"] == typ {
				c.mu.Unlock()
				return f
			}
		}
		c.mu.Unlock()
		select {
		case <-c.wrote:
		case <-deadline:
			t.Fatalf("no %s frame written", typ)
		}
	}
}

type fakeSink struct {
	events []speech.RecognitionEvent
	ends   []uint64
}

func (s *fakeSink) HandleRecognition(ev speech.RecognitionEvent) { s.events = append(s.events, ev) }
func (s *fakeSink) HandleSpeechEnd(id uint64)                    { s.ends = append(s.ends, id) }

func newTestBridge() (*Bridge, *fakeConn) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	conn := newFakeConn()
	return NewBridge(conn, log, validator.New(), utils.New()), conn
}

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload interface{}
		want    string
	}{
		{"no payload", voice.EventSignedOut, nil, `{"type":"signed_out"}`},
		{"object payload is flattened", voice.EventNavigate, voice.NavigatePayload{Path: "/login"}, `{"type":"navigate","path":"/login"}`},
		{"empty object", voice.EventAuthSuccess, struct{}{}, `{"type":"auth.success"}`},
		{"scalar payload", voice.EventStatus, "listening", `{"type":"status","data":"listening"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeFrame(tt.event, tt.payload)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	typ, err := DecodeFrame([]byte(`{"type":"nav.toggle"}`))
	if err != nil || typ != voice.FrameNavToggle {
		t.Errorf("got %q, %v", typ, err)
	}
	if _, err := DecodeFrame([]byte(`{"path":"/"}`)); !errors.Is(err, voice.ErrUnknownFrame) {
		t.Errorf("untyped frame err = %v", err)
	}
	if _, err := DecodeFrame([]byte(`not json`)); err == nil {
		t.Error("garbage accepted")
	}
}

func TestBridge_HandleFrame(t *testing.T) {
	b, _ := newTestBridge()
	sink := &fakeSink{}

	handled, err := b.HandleFrame(voice.FrameHello, []byte(`{"type":"hello","recognition":true,"synthesis":true,"voices":[{"name":"Samantha","lang":"en-US"}]}`), sink)
	if !handled || err != nil {
		t.Fatalf("hello: %v %v", handled, err)
	}
	if caps := b.Capabilities(); !caps.Recognition || !caps.Synthesis || caps.Recorder {
		t.Errorf("caps = %+v", caps)
	}
	if voices := b.Synthesizer().Voices(); len(voices) != 1 || voices[0].Name != "Samantha" {
		t.Errorf("voices = %+v", voices)
	}
	select {
	case <-b.Synthesizer().VoicesChanged():
	default:
		t.Error("voices change not signalled")
	}

	frames := []struct {
		typ string
		raw string
	}{
		{voice.FrameRecognitionResult, `{"type":"recognition.result","session_id":3,"transcript":"go to home","confidence":0.8}`},
		{voice.FrameRecognitionError, `{"type":"recognition.error","session_id":3,"reason":"no-speech"}`},
		{voice.FrameRecognitionEnd, `{"type":"recognition.end","session_id":3}`},
	}
	for _, f := range frames {
		if handled, err := b.HandleFrame(f.typ, []byte(f.raw), sink); !handled || err != nil {
			t.Fatalf("%s: %v %v", f.typ, handled, err)
		}
	}
	want := []speech.RecognitionEvent{
		{SessionID: 3, Kind: speech.EventResult, Transcript: "go to home", Confidence: 0.8},
		{SessionID: 3, Kind: speech.EventError, Reason: "no-speech"},
		{SessionID: 3, Kind: speech.EventEnd},
	}
	if !reflect.DeepEqual(sink.events, want) {
		t.Errorf("events = %+v", sink.events)
	}

	if _, err := b.HandleFrame(voice.FrameSpeechEnd, []byte(`{"type":"speech.end","utterance_id":7}`), sink); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(sink.ends, []uint64{7}) {
		t.Errorf("speech ends = %v", sink.ends)
	}

	if _, err := b.HandleFrame(voice.FrameRecognitionResult, []byte(`{"type":"recognition.result","session_id":3,"confidence":4}`), sink); err == nil {
		t.Error("confidence above 1 accepted")
	}

	if handled, _ := b.HandleFrame(voice.FrameNavToggle, []byte(`{"type":"nav.toggle"}`), sink); handled {
		t.Error("session frame consumed by the bridge")
	}
}

func TestBridge_Collaborator(t *testing.T) {
	b, conn := newTestBridge()

	b.NavigateTo("/dashboard")
	if f := conn.last(); f["type"] != voice.EventNavigate || f["path"] != "/dashboard" {
		t.Errorf("navigate frame = %v", f)
	}

	b.SetField("login", "email", "jane@example.com")
	if f := conn.last(); f["type"] != voice.EventFieldSet || f["value"] != "jane@example.com" {
		t.Errorf("field frame = %v", f)
	}

	if err := b.Synthesizer().Speak(speech.Utterance{ID: 9, Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	if f := conn.last(); f["type"] != voice.EventSpeak || f["utterance_id"] != float64(9) {
		t.Errorf("speak frame = %v", f)
	}

	if err := b.Recognizer().Abort(4); err != nil {
		t.Fatal(err)
	}
	if f := conn.last(); f["type"] != voice.EventRecognitionAbort || f["session_id"] != float64(4) {
		t.Errorf("abort frame = %v", f)
	}
}

func TestBridge_Record(t *testing.T) {
	b, conn := newTestBridge()
	sink := &fakeSink{}

	type outcome struct {
		sample speech.Sample
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := b.Recorder().Record(context.Background(), time.Second)
		done <- outcome{s, err}
	}()

	start := conn.waitType(t, voice.EventRecordStart)
	if start["duration_ms"] != float64(1000) {
		t.Errorf("record.start = %v", start)
	}
	id := start["request_id"].(string)

	raw := `{"type":"record.done","request_id":"` + id + `","audio":"UklGRg==","mime":"audio/wav"}`
	if _, err := b.HandleFrame(voice.FrameRecordDone, []byte(raw), sink); err != nil {
		t.Fatal(err)
	}

	out := <-done
	if out.err != nil {
		t.Fatal(out.err)
	}
	if string(out.sample.Data) != "RIFF" || out.sample.MimeType != "audio/wav" || out.sample.Duration != time.Second {
		t.Errorf("sample = %+v", out.sample)
	}
}

func TestBridge_RecordError(t *testing.T) {
	b, conn := newTestBridge()

	done := make(chan error, 1)
	go func() {
		_, err := b.Recorder().Record(context.Background(), time.Second)
		done <- err
	}()

	id := conn.waitType(t, voice.EventRecordStart)["request_id"].(string)
	raw := `{"type":"record.error","request_id":"` + id + `","reason":"not-allowed"}`
	if _, err := b.HandleFrame(voice.FrameRecordError, []byte(raw), &fakeSink{}); err != nil {
		t.Fatal(err)
	}

	if err := <-done; !errors.Is(err, speech.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestBridge_RecordCancelled(t *testing.T) {
	b, conn := newTestBridge()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := b.Recorder().Record(ctx, time.Minute)
		done <- err
	}()

	conn.waitType(t, voice.EventRecordStart)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	conn.waitType(t, voice.EventRecordCancel)
}

func TestBridge_Close(t *testing.T) {
	b, conn := newTestBridge()

	done := make(chan error, 1)
	go func() {
		_, err := b.Recorder().Record(context.Background(), time.Minute)
		done <- err
	}()
	conn.waitType(t, voice.EventRecordStart)

	b.Close()
	b.Close()

	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("pending record err = %v", err)
	}
	if err := b.Write(voice.EventStatus, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("write after close = %v", err)
	}
	select {
	case <-b.Done():
	default:
		t.Error("Done not closed")
	}
}

func TestBridge_KeepAliveClosesOnPingFailure(t *testing.T) {
	b, conn := newTestBridge()
	b.pingInterval = time.Millisecond
	conn.err = errors.New("broken pipe")

	finished := make(chan struct{})
	go func() {
		b.KeepAlive(context.Background())
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("KeepAlive did not stop")
	}
	select {
	case <-b.Done():
	default:
		t.Error("bridge left open after failed ping")
	}
}
