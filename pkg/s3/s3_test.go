package s3

import (
	"errors"
	"testing"
)

func TestExtractKey(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"virtual host", "https://echo-voice.s3.ap-southeast-1.amazonaws.com/voice-samples/u1/01HZ.webm", "voice-samples/u1/01HZ.webm"},
		{"path style", "http://localhost:9000/echo-voice/voice-samples/u1/01HZ.webm", "voice-samples/u1/01HZ.webm"},
		{"escaped", "https://echo-voice.s3.amazonaws.com/voice-samples/u%201/a.webm", "voice-samples/u 1/a.webm"},
		{"bare key", "voice-samples/u1/a.webm", "voice-samples/u1/a.webm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractKey(tt.url, "echo-voice"); got != tt.want {
				t.Errorf("ExtractKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRequiresBucket(t *testing.T) {
	t.Setenv("AWS_BUCKET_NAME", "")
	if _, err := New(); !errors.Is(err, ErrBucketNotConfigured) {
		t.Errorf("err = %v", err)
	}
}
