package entity

import (
	"time"
)

type VoiceProfile struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	PhoneNumber    string    `json:"-"`
	PassphraseHash string    `json:"-"`
	SampleURL      string    `json:"sample_url"`
	SampleMime     string    `json:"sample_mime"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CommandPhrase struct {
	ID        string    `json:"id"`
	Audience  string    `json:"audience"`
	Position  int       `json:"position"`
	Phrases   []string  `json:"phrases"`
	Action    string    `json:"action"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
