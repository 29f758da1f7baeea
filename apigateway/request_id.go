// Package gateway holds the fiber middleware shared by every grader route:
// request ids, request logging, metrics, error rendering and access guards.
package gateway

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-ID"

// client supplied ids longer than this are replaced
const maxRequestIDLen = 64

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionIDKey
)

// RequestID tags the request with an id, taken from X-Request-ID when the
// client sent a usable one. The id is echoed back and kept in both the fiber
// locals and the user context.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := utils.CopyString(strings.TrimSpace(c.Get(RequestIDHeader)))
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}
		c.Locals("request_id", requestID)
		c.SetUserContext(context.WithValue(c.UserContext(), requestIDKey, requestID))
		c.Set(RequestIDHeader, requestID)
		return c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		if r <= ' ' || r > '~' {
			return false
		}
	}
	return true
}

func RequestIDFromCtx(c *fiber.Ctx) string {
	if id, ok := c.Locals("request_id").(string); ok {
		return id
	}
	return ""
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// LogFields are the request and session ids known for c, for handler logs.
func LogFields(c *fiber.Ctx) logrus.Fields {
	fields := logrus.Fields{}
	if id := RequestIDFromCtx(c); id != "" {
		fields["request_id"] = id
	}
	if id := SessionIDFromCtx(c); id != "" {
		fields["session_id"] = id
	}
	return fields
}
