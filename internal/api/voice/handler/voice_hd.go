package voiceHandler

import (
	"EchoBank/internal/api/voice"
	voiceService "EchoBank/internal/api/voice/service"
	contextPkg "EchoBank/pkg/context"
	"EchoBank/pkg/handlerUtil"
	"EchoBank/pkg/log"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

type PageResponse struct {
	Page         string   `json:"page"`
	Title        string   `json:"title"`
	Actions      []string `json:"actions"`
	Announcement string   `json:"announcement"`
}

func (h *VoiceHandler) GetPhraseTable(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	audience, err := voiceService.ParseAudience(ctx.Query("audience"))
	if err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	table, err := h.voiceService.GetPhraseTable(c, audience)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_phrase_table")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, voice.PhraseTableResponse{
			Audience: string(audience),
			Commands: table.DTO(),
		})
	}
}

func (h *VoiceHandler) ReplacePhraseTable(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	var req voice.ReplacePhraseTableRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	audience, err := voiceService.ParseAudience(req.Audience)
	if err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"audience":   audience,
		"entries":    len(req.Commands),
	}).Debug("Replacing phrase table")

	if err := h.voiceService.ReplacePhraseTable(c, audience, voiceService.PhraseTableFromDTO(req.Commands)); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "replace_phrase_table")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusNoContent, nil)
}

func (h *VoiceHandler) GetPage(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	id := ctx.Params("page")
	page, ok := voiceService.LookupPage(id)
	if !ok {
		return errHandler.Handle(ctx, requestID, fiber.NewError(fiber.StatusNotFound, "page not found"), ctx.Path(), "get_page")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, PageResponse{
		Page:         id,
		Title:        page.Title,
		Actions:      page.Actions,
		Announcement: voiceService.ComposeAnnouncement(h.voiceService.Config().ProductName, page),
	})
}

func (h *VoiceHandler) Normalize(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	var req voice.NormalizeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	resp := h.voiceService.Normalize(contextPkg.FromFiberCtx(ctx), req)
	return errHandler.HandleSuccess(ctx, fiber.StatusOK, resp)
}
