package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/SinaHo/phone-referral-auth/internal/service"
)

var statusByKind = map[service.Kind]int{
	service.KindValidation:       fiber.StatusBadRequest,
	service.KindBadRequest:       fiber.StatusBadRequest,
	service.KindNotFound:         fiber.StatusNotFound,
	service.KindConflict:         fiber.StatusConflict,
	service.KindPermissionDenied: fiber.StatusForbidden,
	service.KindUnauthenticated:  fiber.StatusUnauthorized,
	service.KindTooManyRequests:  fiber.StatusTooManyRequests,
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	if code, ok := statusByKind[service.KindOf(err)]; ok {
		return code
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, logger *zap.SugaredLogger, err error) error {
	code := StatusFor(err)
	if code == fiber.StatusInternalServerError {
		logger.Errorw("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(code).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "invalid request body",
	})
}

// ErrorHandler renders errors escaping handlers, including fiber's own 404/405.
func ErrorHandler(logger *zap.SugaredLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e, ok := err.(*fiber.Error); ok {
			return c.Status(e.Code).JSON(fiber.Map{
				"error": e.Message,
			})
		}
		return respondError(c, logger, err)
	}
}
