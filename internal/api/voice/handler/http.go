package voiceHandler

import (
	voiceService "EchoBank/internal/api/voice/service"
	"EchoBank/internal/middleware"
	"EchoBank/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type VoiceHandler struct {
	log          *logrus.Logger
	validator    *validator.Validate
	middleware   middleware.Middleware
	voiceService voiceService.IVoiceService
	utils        utils.IUtils
}

func New(
	log *logrus.Logger,
	validate *validator.Validate,
	middleware middleware.Middleware,
	vs voiceService.IVoiceService,
	u utils.IUtils,
) *VoiceHandler {
	return &VoiceHandler{
		log:          log,
		validator:    validate,
		middleware:   middleware,
		voiceService: vs,
		utils:        u,
	}
}

func (h *VoiceHandler) Start(srv fiber.Router) {
	voice := srv.Group("/voice")

	voice.Get("/phrases", h.GetPhraseTable)
	voice.Put("/phrases", h.middleware.NewTokenMiddleware, h.ReplacePhraseTable)
	voice.Get("/pages/:page", h.GetPage)
	voice.Post("/normalize", h.Normalize)

	voice.Post("/login", h.middleware.NewRateLimiter, h.LoginWithVoice)
	voice.Post("/logout", h.middleware.NewTokenMiddleware, h.SignOut)

	profile := voice.Group("/profile", h.middleware.NewTokenMiddleware)
	profile.Post("/", h.CreateVoiceProfile)
	profile.Get("/", h.GetVoiceProfile)
	profile.Delete("/", h.DeleteVoiceProfile)

	voice.Use("/ws", h.UpgradeSocket)
	voice.Get("/ws", websocket.New(h.HandleSocket))
}
