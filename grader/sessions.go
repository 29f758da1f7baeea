package grader

import (
	"github.com/gofiber/fiber/v2"
	gateway "github.com/mathfe/grader/apigateway"
)

// CreateSession issues a fresh session id. Every other grading route expects
// it in the X-Session-ID header.
func (s *Service) CreateSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id, err := s.Sessions.Create(ctx)
	if err != nil {
		return err
	}
	sess, err := s.Store.CreateSession(ctx, id)
	if err != nil {
		_ = s.Sessions.Revoke(ctx, id)
		return err
	}
	s.Logger.WithFields(gateway.LogFields(c)).WithField("session_id", id).Info("session created")
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// DeleteSession drops the session and everything graded under it.
func (s *Service) DeleteSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sid := sessionID(c)
	if err := s.Sessions.Revoke(ctx, sid); err != nil {
		s.Logger.WithFields(gateway.LogFields(c)).WithError(err).Warn("revoke session key")
	}
	if err := s.Store.DeleteSession(ctx, sid); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
