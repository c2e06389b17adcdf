package voiceService

import (
	"errors"
	"testing"
	"time"
)

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		in      string
		want    Hotkey
		wantErr bool
	}{
		{in: "Ctrl+Shift+V", want: Hotkey{Key: "V", Ctrl: true, Shift: true}},
		{in: "cmd + option + k", want: Hotkey{Key: "k", Ctrl: true, Alt: true}},
		{in: "Shift+Space", want: Hotkey{Key: "Space", Shift: true}},
		{in: "V", wantErr: true},
		{in: "Hyper+V", wantErr: true},
		{in: "Ctrl+", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHotkey(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHotkey_Matches(t *testing.T) {
	h := DefaultHotkey

	tests := []struct {
		name string
		ev   KeyEvent
		want bool
	}{
		{"ctrl shift v", KeyEvent{Key: "V", Ctrl: true, Shift: true}, true},
		{"lowercase key", KeyEvent{Key: "v", Ctrl: true, Shift: true}, true},
		{"meta stands in for ctrl", KeyEvent{Key: "v", Meta: true, Shift: true}, true},
		{"missing shift", KeyEvent{Key: "v", Ctrl: true}, false},
		{"extra alt", KeyEvent{Key: "v", Ctrl: true, Shift: true, Alt: true}, false},
		{"other key", KeyEvent{Key: "b", Ctrl: true, Shift: true}, false},
		{"bare key", KeyEvent{Key: "v"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Matches(tt.ev); got != tt.want {
				t.Errorf("Matches(%+v) = %v, want %v", tt.ev, got, tt.want)
			}
		})
	}
}

func TestHotkey_String(t *testing.T) {
	if got := DefaultHotkey.String(); got != "Ctrl+Shift+V" {
		t.Errorf("DefaultHotkey = %q", got)
	}
	if got := (Hotkey{Key: "k", Ctrl: true, Alt: true, Shift: true}).String(); got != "Ctrl+Alt+Shift+K" {
		t.Errorf("got %q", got)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatal(err)
		}
		if *cfg != DefaultConfig() {
			t.Errorf("got %+v", *cfg)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("VOICE_PRODUCT_NAME", "Echo Test")
		t.Setenv("VOICE_HOTKEY", "Alt+N")
		t.Setenv("VOICE_AUTH_THRESHOLD", "0.5")
		t.Setenv("VOICE_AUTH_MAX_ATTEMPTS", "5")
		t.Setenv("VOICE_DICTATION_TIMEOUT", "8s")
		t.Setenv("VOICE_LOGIN_TTL", "30m")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatal(err)
		}
		if cfg.ProductName != "Echo Test" || cfg.Hotkey != (Hotkey{Key: "N", Alt: true}) {
			t.Errorf("product/hotkey = %q %+v", cfg.ProductName, cfg.Hotkey)
		}
		if cfg.AuthThreshold != 0.5 || cfg.AuthMaxAttempts != 5 {
			t.Errorf("auth = %v %d", cfg.AuthThreshold, cfg.AuthMaxAttempts)
		}
		if cfg.DictationTimeout != 8*time.Second || cfg.LoginTTL != 30*time.Minute {
			t.Errorf("durations = %v %v", cfg.DictationTimeout, cfg.LoginTTL)
		}
	})

	invalid := map[string]string{
		"VOICE_HOTKEY":            "V",
		"VOICE_AUTH_THRESHOLD":    "1.5",
		"VOICE_AUTH_MAX_ATTEMPTS": "0",
		"VOICE_MAX_SAMPLE_SIZE":   "-1",
		"VOICE_AUTH_TIMEOUT":      "soon",
	}
	for env, value := range invalid {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			if _, err := LoadConfig(); err == nil {
				t.Errorf("%s=%q accepted", env, value)
			}
		})
	}

	t.Run("enrolment shorter than one tick", func(t *testing.T) {
		t.Setenv("VOICE_ENROLL_DURATION", "10ms")
		if _, err := LoadConfig(); !errors.Is(err, ErrEnrollmentDuration) {
			t.Errorf("err = %v", err)
		}
	})
}
