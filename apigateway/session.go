package gateway

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/mathfe/grader/apperr"
)

const SessionIDHeader = "X-Session-ID"

// SessionToucher validates and refreshes a session id.
type SessionToucher interface {
	Touch(ctx context.Context, id string) error
}

// RequireSession rejects requests without a live session and stores the id
// in the request locals and user context.
func RequireSession(sessions SessionToucher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := utils.CopyString(strings.TrimSpace(c.Get(SessionIDHeader)))
		if id == "" {
			return apperr.WithMessage(apperr.ErrUnauthorized, "missing "+SessionIDHeader+" header")
		}
		if err := sessions.Touch(c.UserContext(), id); err != nil {
			return err
		}
		c.Locals("session_id", id)
		c.SetUserContext(context.WithValue(c.UserContext(), sessionIDKey, id))
		return c.Next()
	}
}

func SessionIDFromCtx(c *fiber.Ctx) string {
	if id, ok := c.Locals("session_id").(string); ok {
		return id
	}
	return ""
}
