package gateway

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mathfe/grader/apperr"
	"github.com/sirupsen/logrus"
)

// ErrorHandler renders handler errors as {code, message, fields}.
func ErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if fe, ok := err.(*fiber.Error); ok {
			return c.Status(fe.Code).JSON(fiber.Map{"code": codeForStatus(fe.Code), "message": fe.Message})
		}
		status := apperr.Status(err)
		if status >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"request_id": RequestIDFromCtx(c),
				"code":       apperr.Code(err),
			}).WithError(err).Error("request failed")
		}
		return c.Status(status).JSON(apperr.Payload(err))
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case fiber.StatusBadRequest:
		return "bad_request"
	}
	if status >= fiber.StatusInternalServerError {
		return "internal_error"
	}
	return "error"
}
