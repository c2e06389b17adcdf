package voiceService

import (
	"fmt"
	"strings"
)

type KeyEvent struct {
	Key   string `json:"key" validate:"required"`
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Meta  bool   `json:"meta"`
	Alt   bool   `json:"alt"`
}

// Hotkey is a modifier+key combination. Ctrl also accepts the Meta key so
// the same binding works on macOS.
type Hotkey struct {
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
}

var DefaultHotkey = Hotkey{Key: "V", Ctrl: true, Shift: true}

// ParseHotkey reads bindings such as "Ctrl+Shift+V".
func ParseHotkey(s string) (Hotkey, error) {
	parts := strings.Split(s, "+")
	if len(parts) < 2 {
		return Hotkey{}, fmt.Errorf("hotkey %q needs a modifier and a key", s)
	}

	var h Hotkey
	for _, p := range parts[:len(parts)-1] {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "ctrl", "control", "cmd", "meta":
			h.Ctrl = true
		case "shift":
			h.Shift = true
		case "alt", "option":
			h.Alt = true
		default:
			return Hotkey{}, fmt.Errorf("hotkey %q: unknown modifier %q", s, p)
		}
	}

	h.Key = strings.TrimSpace(parts[len(parts)-1])
	if h.Key == "" {
		return Hotkey{}, fmt.Errorf("hotkey %q has no key", s)
	}
	return h, nil
}

func (h Hotkey) Matches(ev KeyEvent) bool {
	if !strings.EqualFold(ev.Key, h.Key) {
		return false
	}
	if h.Ctrl != (ev.Ctrl || ev.Meta) {
		return false
	}
	return h.Shift == ev.Shift && h.Alt == ev.Alt
}

func (h Hotkey) String() string {
	var parts []string
	if h.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if h.Alt {
		parts = append(parts, "Alt")
	}
	if h.Shift {
		parts = append(parts, "Shift")
	}
	parts = append(parts, strings.ToUpper(h.Key))
	return strings.Join(parts, "+")
}
