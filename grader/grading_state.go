package grader

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	gateway "github.com/mathfe/grader/apigateway"
	"github.com/mathfe/grader/apperr"
	"github.com/mathfe/grader/grading"
)

type studentRequest struct {
	StudentNumber string `json:"student_number" binding:"required,studentnum"`
}

// SetStudentNumber records or corrects the student number of a script.
func (s *Service) SetStudentNumber(c *fiber.Ctx) error {
	idx, err := intParam(c, "file")
	if err != nil {
		return err
	}
	var req studentRequest
	if err := parseJSON(c, &req); err != nil {
		return err
	}
	req.StudentNumber = strings.TrimSpace(req.StudentNumber)
	if err := grading.ValidateStruct(&req); err != nil {
		return err
	}
	ctx, sid := c.UserContext(), sessionID(c)
	if err := s.Store.FileExists(ctx, sid, idx); err != nil {
		return err
	}
	num := grading.NormalizeStudentNumber(req.StudentNumber)
	if err := s.Store.SetStudentNumber(ctx, sid, idx, num); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"file_idx": idx, "student_number": num})
}

// Submit marks a script as graded. It needs a student number.
func (s *Service) Submit(c *fiber.Ctx) error {
	idx, err := intParam(c, "file")
	if err != nil {
		return err
	}
	ctx, sid := c.UserContext(), sessionID(c)
	if err := s.Store.FileExists(ctx, sid, idx); err != nil {
		return err
	}
	nums, err := s.Store.StudentNumbers(ctx, sid)
	if err != nil {
		return err
	}
	if nums[idx] == "" {
		return apperr.ErrStudentNumRequired
	}
	if err := s.Store.MarkCompleted(ctx, sid, idx); err != nil {
		return err
	}
	submissions.Inc()
	s.Logger.WithFields(gateway.LogFields(c)).WithField("file_idx", idx).Info("script submitted")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"file_idx": idx, "student_number": nums[idx], "completed": true})
}
