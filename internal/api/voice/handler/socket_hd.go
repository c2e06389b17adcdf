package voiceHandler

import (
	"EchoBank/internal/api/voice"
	voiceService "EchoBank/internal/api/voice/service"
	"EchoBank/internal/middleware"
	contextPkg "EchoBank/pkg/context"
	"EchoBank/pkg/log"
	"EchoBank/pkg/response"
	websocketPkg "EchoBank/pkg/websocket"
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	pongWait    = 60 * time.Second
	inboxBuffer = 32
)

type inboundFrame struct {
	typ string
	raw []byte
}

// UpgradeSocket lets websocket upgrades through and carries the request id
// into the connection.
func (h *VoiceHandler) UpgradeSocket(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	ctx.Locals(middleware.RequestIDKey, h.middleware.GetRequestID(ctx))
	return ctx.Next()
}

// HandleSocket runs one voice session per connection. Platform frames are
// delivered from the read loop so a controller waiting on the browser never
// blocks them; the remaining frames are dispatched in order on their own
// goroutine.
func (h *VoiceHandler) HandleSocket(conn *websocket.Conn) {
	requestID, _ := conn.Locals(middleware.RequestIDKey).(string)
	ctx, cancel := context.WithCancel(contextPkg.WithRequestID(context.Background(), requestID))

	bridge := websocketPkg.NewBridge(conn, h.log, h.validator, h.utils)
	session := h.voiceService.NewSession(ctx, bridge)

	logger := log.WithContext(h.log, contextPkg.WithSessionID(ctx, session.ID()))
	logger.Info("Voice socket connected")

	inbox := make(chan inboundFrame, inboxBuffer)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for f := range inbox {
			if err := h.dispatch(session, bridge, f); err != nil {
				h.reject(bridge, logger, f.typ, err)
			}
		}
	}()
	go bridge.KeepAlive(ctx)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithField("error", err.Error()).Warn("Voice socket read failed")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		typ, err := websocketPkg.DecodeFrame(raw)
		if err != nil {
			h.reject(bridge, logger, "", err)
			continue
		}

		handled, err := bridge.HandleFrame(typ, raw, session.Channel())
		if err != nil {
			h.reject(bridge, logger, typ, err)
			continue
		}
		if handled {
			continue
		}

		select {
		case inbox <- inboundFrame{typ: typ, raw: raw}:
		case <-bridge.Done():
		}
	}

	cancel()
	close(inbox)
	<-dispatched
	session.Close()
	bridge.Close()

	logger.Info("Voice socket disconnected")
}

func (h *VoiceHandler) dispatch(session *voiceService.VoiceSession, bridge *websocketPkg.Bridge, f inboundFrame) error {
	switch f.typ {
	case voice.FrameAuth:
		var req voice.AuthFrame
		if err := bridge.Decode(f.raw, &req); err != nil {
			return err
		}
		return session.Authenticate(req.Token)

	case voice.FrameKey:
		var req voice.KeyFrame
		if err := bridge.Decode(f.raw, &req); err != nil {
			return err
		}
		return session.HandleKey(voiceService.KeyEvent{
			Key:   req.Key,
			Ctrl:  req.Ctrl,
			Shift: req.Shift,
			Meta:  req.Meta,
			Alt:   req.Alt,
		})

	case voice.FrameNavToggle:
		session.ToggleNavigation()

	case voice.FrameFieldToggle:
		var req voice.FieldFrame
		if err := bridge.Decode(f.raw, &req); err != nil {
			return err
		}
		session.ToggleField(voiceService.FieldRef{Form: req.Form, Field: req.Field})

	case voice.FramePageMount:
		var req voice.PageFrame
		if err := bridge.Decode(f.raw, &req); err != nil {
			return err
		}
		session.MountPage(req.Page, voiceService.Page{Title: req.Title, Actions: req.Actions})

	case voice.FramePageUnmount:
		var req voice.PageFrame
		if err := bridge.Decode(f.raw, &req); err != nil {
			return err
		}
		session.UnmountPage(req.Page)

	case voice.FrameAuthMount:
		var req voice.AuthStartFrame
		if err := bridge.Decode(f.raw, &req); err != nil {
			return err
		}
		session.MountAuth(req.Account)

	case voice.FrameAuthUnmount:
		session.UnmountAuth()

	case voice.FrameAuthStart:
		var req voice.AuthStartFrame
		if err := bridge.Decode(f.raw, &req); err != nil {
			return err
		}
		return session.StartChallenge(req.Account)

	case voice.FrameEnrollStart:
		var req voice.EnrollFrame
		if err := bridge.Decode(f.raw, &req); err != nil {
			return err
		}
		return session.StartEnrollment(time.Duration(req.DurationMs) * time.Millisecond)

	default:
		return voice.ErrUnknownFrame
	}
	return nil
}

func (h *VoiceHandler) reject(bridge *websocketPkg.Bridge, logger *logrus.Entry, typ string, err error) {
	logger.WithFields(logrus.Fields{
		"frame": typ,
		"error": err.Error(),
	}).Warn("Voice frame rejected")

	payload := voice.ErrorPayload{Message: err.Error(), Frame: typ}
	if code, ok := response.StatusOf(err); ok {
		payload.Code = code
	}
	if werr := bridge.Write(voice.EventError, payload); werr != nil && !errors.Is(werr, websocketPkg.ErrClosed) {
		logger.WithField("error", werr.Error()).Warn("Failed to report voice frame error")
	}
}
