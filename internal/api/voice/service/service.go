package voiceService

import (
	"EchoBank/internal/api/voice"
	voiceRepository "EchoBank/internal/api/voice/repository"
	"EchoBank/internal/entity"
	"EchoBank/pkg/audio"
	"EchoBank/pkg/bcrypt"
	"EchoBank/pkg/clock"
	contextPkg "EchoBank/pkg/context"
	"EchoBank/pkg/redis"
	"EchoBank/pkg/s3"
	"EchoBank/pkg/speech"
	"EchoBank/pkg/utils"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

type IVoiceService interface {
	// Phrase tables
	GetPhraseTable(ctx context.Context, audience Audience) (PhraseTable, error)
	ReplacePhraseTable(ctx context.Context, audience Audience, table PhraseTable) error

	Normalize(ctx context.Context, req voice.NormalizeRequest) voice.NormalizeResponse

	// Voice profile
	CreateVoiceProfile(ctx context.Context, userID string, sample speech.Sample) (ProfileResult, error)
	GetVoiceProfile(ctx context.Context, userID string) (voice.VoiceProfileResponse, error)
	DeleteVoiceProfile(ctx context.Context, userID string) error

	// Voice login
	LoginWithVoice(ctx context.Context, account, passphrase string) (voice.VoiceLoginResponse, error)
	SignOut(ctx context.Context, userID string) error
	VerifyToken(ctx context.Context, token string) (entity.UserLoginData, error)

	NewSession(ctx context.Context, client Client) *VoiceSession
	Config() VoiceConfig
}

type voiceService struct {
	log         *logrus.Logger
	voiceRepo   voiceRepository.Repository
	s3Client    s3.ItfS3
	redis       redis.IRedis
	bcrypt      bcrypt.IBcrypt
	transcriber audio.ITranscriber
	utils       utils.IUtils
	clock       clock.Clock
	config      *VoiceConfig
	notifier    SecurityNotifier
}

type VoiceConfig struct {
	ProductName      string        `json:"product_name"`
	Hotkey           Hotkey        `json:"hotkey"`
	AuthThreshold    float64       `json:"auth_threshold"`
	AuthMaxAttempts  int           `json:"auth_max_attempts"`
	AuthTimeout      time.Duration `json:"auth_timeout"`
	DictationTimeout time.Duration `json:"dictation_timeout"`
	EnrollDuration   time.Duration `json:"enroll_duration"`
	MaxSampleSize    int64         `json:"max_sample_size"`
	LoginTTL         time.Duration `json:"login_ttl"`
}

func DefaultConfig() VoiceConfig {
	return VoiceConfig{
		ProductName:      "Echo Bank",
		Hotkey:           DefaultHotkey,
		AuthThreshold:    DefaultAuthThreshold,
		AuthMaxAttempts:  DefaultAuthMaxAttempts,
		AuthTimeout:      10 * time.Second,
		DictationTimeout: 5 * time.Second,
		EnrollDuration:   5 * time.Second,
		MaxSampleSize:    10 * 1024 * 1024,
		LoginTTL:         time.Hour,
	}
}

// LoadConfig reads the VOICE_* environment on top of DefaultConfig.
func LoadConfig() (*VoiceConfig, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("VOICE_PRODUCT_NAME"); v != "" {
		cfg.ProductName = v
	}
	if v := os.Getenv("VOICE_HOTKEY"); v != "" {
		h, err := ParseHotkey(v)
		if err != nil {
			return nil, fmt.Errorf("VOICE_HOTKEY: %w", err)
		}
		cfg.Hotkey = h
	}
	if v := os.Getenv("VOICE_AUTH_THRESHOLD"); v != "" {
		th, err := strconv.ParseFloat(v, 64)
		if err != nil || th < 0 || th > 1 {
			return nil, fmt.Errorf("VOICE_AUTH_THRESHOLD must be within [0,1], got %q", v)
		}
		cfg.AuthThreshold = th
	}
	if v := os.Getenv("VOICE_AUTH_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("VOICE_AUTH_MAX_ATTEMPTS must be a positive integer, got %q", v)
		}
		cfg.AuthMaxAttempts = n
	}
	if v := os.Getenv("VOICE_MAX_SAMPLE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("VOICE_MAX_SAMPLE_SIZE must be a positive integer, got %q", v)
		}
		cfg.MaxSampleSize = n
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"VOICE_AUTH_TIMEOUT", &cfg.AuthTimeout},
		{"VOICE_DICTATION_TIMEOUT", &cfg.DictationTimeout},
		{"VOICE_ENROLL_DURATION", &cfg.EnrollDuration},
		{"VOICE_LOGIN_TTL", &cfg.LoginTTL},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration, got %q", d.env, v)
		}
		*d.dst = parsed
	}

	if cfg.EnrollDuration < enrollTick {
		return nil, ErrEnrollmentDuration
	}

	return &cfg, nil
}

func NewVoiceService(
	log *logrus.Logger,
	voiceRepo voiceRepository.Repository,
	s3Client s3.ItfS3,
	redisServer redis.IRedis,
	bcryptUtils bcrypt.IBcrypt,
	transcriber audio.ITranscriber,
	utils utils.IUtils,
	clk clock.Clock,
	config *VoiceConfig,
	notifier SecurityNotifier,
) IVoiceService {
	if config == nil {
		cfg := DefaultConfig()
		config = &cfg
	}
	if clk == nil {
		clk = clock.New()
	}
	return &voiceService{
		log:         log,
		voiceRepo:   voiceRepo,
		s3Client:    s3Client,
		redis:       redisServer,
		bcrypt:      bcryptUtils,
		transcriber: transcriber,
		utils:       utils,
		clock:       clk,
		config:      config,
		notifier:    notifier,
	}
}

func (s *voiceService) Config() VoiceConfig {
	return *s.config
}

func requestIDOf(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	return contextPkg.GetRequestID(ctx)
}

// spokenReason turns a recognition failure into words fit for an
// announcement.
func spokenReason(err error) string {
	switch {
	case errors.Is(err, speech.ErrPermissionDenied):
		return "microphone access denied"
	case errors.Is(err, speech.ErrNoSpeech):
		return "no speech detected"
	case errors.Is(err, speech.ErrTimeout):
		return "timed out"
	case errors.Is(err, speech.ErrAborted):
		return "aborted"
	case errors.Is(err, speech.ErrCapabilityUnavailable):
		return "not supported"
	default:
		var re *speech.RecognitionError
		if errors.As(err, &re) && re.Reason != "" {
			return re.Reason
		}
		return "unknown error"
	}
}
