package redis

import "testing"

func TestKeyPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "echobank:voice-login:u1"},
		{"staging:", "staging:voice-login:u1"},
	}

	for _, tt := range tests {
		r := NewFromClient(nil, tt.prefix).(*redisClient)
		if got := r.key("voice-login:u1"); got != tt.want {
			t.Errorf("prefix %q: key = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}
