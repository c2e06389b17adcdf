package config

import (
	"EchoBank/pkg/log"
	"EchoBank/pkg/response"
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func NewFiber(logger *logrus.Logger) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:           "Echo Bank Voice",
			BodyLimit:         20 * 1024 * 1024,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: os.Getenv("APP_ENV") != "production",
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
			ErrorHandler:      errorHandler(logger),
		})

	return app
}

// errorHandler renders errors that escape handlers in the same
// {"error": ...} shape the handlers use.
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}

		if code, ok := response.StatusOf(err); ok {
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		}

		requestID, _ := c.Locals("request_id").(string)
		traceID := log.ErrorWithTraceID(logger, log.Fields{
			"request_id": requestID,
			"path":       c.Path(),
			"error":      err.Error(),
		}, "Unhandled error")

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":    "internal server error",
			"trace_id": traceID,
		})
	}
}
