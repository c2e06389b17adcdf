package voiceHandler

import (
	"EchoBank/internal/api/voice"
	contextPkg "EchoBank/pkg/context"
	"EchoBank/pkg/handlerUtil"
	jwtPkg "EchoBank/pkg/jwt"
	"EchoBank/pkg/log"
	"EchoBank/pkg/speech"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *VoiceHandler) CreateVoiceProfile(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 60*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	user, err := jwtPkg.GetUserLoginData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized, access token invalid or expired")
	}

	file, err := ctx.FormFile("audio")
	if err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	if err := h.utils.ValidateAudioFile(file, h.voiceService.Config().MaxSampleSize); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "validate_voice_sample")
	}

	data, err := h.utils.ReadFile(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_voice_sample")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"user_id":    user.ID,
		"size":       file.Size,
		"mime":       file.Header.Get("Content-Type"),
	}).Debug("Enrolling uploaded voice sample")

	result, err := h.voiceService.CreateVoiceProfile(c, user.ID, speech.Sample{
		Data:     data,
		MimeType: file.Header.Get("Content-Type"),
	})
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "create_voice_profile")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusCreated, result)
	}
}

func (h *VoiceHandler) GetVoiceProfile(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	user, err := jwtPkg.GetUserLoginData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized, access token invalid or expired")
	}

	profile, err := h.voiceService.GetVoiceProfile(c, user.ID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_voice_profile")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, profile)
}

func (h *VoiceHandler) DeleteVoiceProfile(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	user, err := jwtPkg.GetUserLoginData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized, access token invalid or expired")
	}

	if err := h.voiceService.DeleteVoiceProfile(c, user.ID); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "delete_voice_profile")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusNoContent, nil)
}

func (h *VoiceHandler) LoginWithVoice(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var req voice.VoiceLoginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	resp, err := h.voiceService.LoginWithVoice(c, req.Email, req.Passphrase)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "login_with_voice")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, resp)
	}
}

func (h *VoiceHandler) SignOut(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	user, err := jwtPkg.GetUserLoginData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized, access token invalid or expired")
	}

	if err := h.voiceService.SignOut(c, user.ID); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "voice_sign_out")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusNoContent, nil)
}
