package config

import (
	"EchoBank/database/postgres"
	voiceHandler "EchoBank/internal/api/voice/handler"
	voiceRepository "EchoBank/internal/api/voice/repository"
	voiceService "EchoBank/internal/api/voice/service"
	"EchoBank/internal/middleware"
	"EchoBank/pkg/audio"
	"EchoBank/pkg/bcrypt"
	"EchoBank/pkg/clock"
	"EchoBank/pkg/gemini"
	"EchoBank/pkg/redis"
	"EchoBank/pkg/s3"
	"EchoBank/pkg/smtp"
	"EchoBank/pkg/utils"
	"EchoBank/pkg/whatsapp"
	"context"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"os"
	"time"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	db          *sqlx.DB
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	bcryptUtils bcrypt.IBcrypt
	handlers    []handler
	redisServer redis.IRedis
	s3Client    s3.ItfS3
	transcriber audio.ITranscriber
	clock       clock.Clock
	voiceConfig *voiceService.VoiceConfig
	mailer      smtp.ItfSmtp
	whatsapp    whatsapp.IWhatsappSender
	closers     []func() error
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.clock == nil {
		server.clock = clock.New()
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithDatabase() ServerOption {
	return func(s *Server) error {
		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

// WithTranscriber prefers Whisper and falls back to Gemini.
func WithTranscriber() ServerOption {
	return func(s *Server) error {
		if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
			s.transcriber = audio.NewTranscriptionService(apiKey)
			return nil
		}

		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("OPENAI_API_KEY or GEMINI_API_KEY is required for voice enrolment")
		}
		transcriber, err := gemini.NewTranscriber(context.Background())
		if err != nil {
			return fmt.Errorf("failed to create gemini transcriber: %w", err)
		}
		s.transcriber = transcriber
		s.closers = append(s.closers, transcriber.Close)
		return nil
	}
}

// WithSecurityAlerts enables lockout alerts by email when SMTP_MAIL is set
// and by WhatsApp when WHATSAPP_ENABLED is true.
func WithSecurityAlerts() ServerOption {
	return func(s *Server) error {
		if os.Getenv("SMTP_MAIL") != "" {
			s.mailer = smtp.New()
		}

		if os.Getenv("WHATSAPP_ENABLED") == "true" {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			sender, err := whatsapp.New(ctx, s.log)
			if err != nil {
				if s.log != nil {
					s.log.Errorf("Failed to connect WhatsApp: %v", err)
				}
				return fmt.Errorf("failed to create whatsapp sender: %w", err)
			}
			s.whatsapp = sender
			s.closers = append(s.closers, sender.Disconnect)
		}
		return nil
	}
}

func WithClock(c clock.Clock) ServerOption {
	return func(s *Server) error {
		s.clock = c
		return nil
	}
}

func WithVoiceConfig() ServerOption {
	return func(s *Server) error {
		cfg, err := voiceService.LoadConfig()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Invalid voice configuration: %v", err)
			}
			return fmt.Errorf("failed to load voice config: %w", err)
		}
		s.voiceConfig = cfg
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func WithBcryptUtils() ServerOption {
	return func(s *Server) error {
		s.bcryptUtils = bcrypt.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Voice Domain
	voiceRepo := voiceRepository.New(s.db, s.log)

	var notifier voiceService.SecurityNotifier
	if s.mailer != nil || s.whatsapp != nil {
		product := voiceService.DefaultConfig().ProductName
		if s.voiceConfig != nil {
			product = s.voiceConfig.ProductName
		}
		notifier = voiceService.NewSecurityNotifier(s.log, s.mailer, s.whatsapp, product)
	}

	voiceServices := voiceService.NewVoiceService(s.log, voiceRepo, s.s3Client, s.redisServer, s.bcryptUtils, s.transcriber, s.utils, s.clock, s.voiceConfig, notifier)
	voiceHandlers := voiceHandler.New(s.log, s.validator, s.middleware, voiceServices, s.utils)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, voiceHandlers)
}

func (s *Server) Run() error {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(middleware.LoggerConfig())
	router := s.engine.Group("/api/v1")

	for _, h := range s.handlers {
		h.Start(router)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

func (s *Server) Shutdown() error {
	if err := s.engine.Shutdown(); err != nil {
		return err
	}
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.log.Warnf("Failed to release client: %v", err)
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "Server is Healthy!",
		})
	})
}
