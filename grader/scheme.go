package grader

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/mathfe/grader/apperr"
	"github.com/mathfe/grader/grading"
)

type schemeRequest struct {
	Total     int         `json:"total" binding:"required,min=1"`
	Questions map[int]int `json:"questions" binding:"required,min=1"`
}

type questionCountRequest struct {
	Count int `json:"count" binding:"required,min=1"`
}

type totalRequest struct {
	Total int `json:"total" binding:"required,min=1"`
}

type questionScoreRequest struct {
	Score int `json:"score" binding:"required,min=1"`
}

// schemeOrDefault returns the stored scheme, or the starting scheme when the
// session has not saved one yet.
func (s *Service) schemeOrDefault(ctx context.Context, sid string) (grading.Scheme, error) {
	scheme, err := s.Store.GetScheme(ctx, sid)
	if errors.Is(err, apperr.ErrNotFound) {
		return grading.NewScheme(), nil
	}
	return scheme, err
}

func (s *Service) updateScheme(c *fiber.Ctx, fn func(*grading.Scheme) error) error {
	ctx, sid := c.UserContext(), sessionID(c)
	scheme, err := s.schemeOrDefault(ctx, sid)
	if err != nil {
		return err
	}
	if err := fn(&scheme); err != nil {
		return err
	}
	if err := s.Store.PutScheme(ctx, sid, scheme); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(scheme)
}

func (s *Service) GetScheme(c *fiber.Ctx) error {
	scheme, err := s.schemeOrDefault(c.UserContext(), sessionID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(scheme)
}

// PutScheme replaces the whole scheme. Questions must be numbered 1..n
// without gaps and may not be allocated more than the total.
func (s *Service) PutScheme(c *fiber.Ctx) error {
	var req schemeRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	fields := map[string]any{}
	for q, m := range req.Questions {
		if m < 1 {
			fields["questions"] = fmt.Sprintf("question %d: score must be at least 1", q)
		}
	}
	if !(grading.Scheme{Questions: req.Questions}).Numbered() {
		fields["questions"] = fmt.Sprintf("questions must be numbered 1 to %d without gaps", len(req.Questions))
	}
	if len(fields) > 0 {
		return apperr.WithFields(apperr.ErrValidation, fields)
	}
	scheme := grading.Scheme{Total: req.Total, Questions: req.Questions}
	if scheme.Allocated() > scheme.Total {
		return apperr.ErrSchemeOverflow
	}
	return s.updateScheme(c, func(cur *grading.Scheme) error {
		*cur = scheme
		return nil
	})
}

func (s *Service) SetQuestionCount(c *fiber.Ctx) error {
	var req questionCountRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	return s.updateScheme(c, func(scheme *grading.Scheme) error {
		return scheme.SetQuestionCount(req.Count)
	})
}

func (s *Service) SetTotal(c *fiber.Ctx) error {
	var req totalRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	return s.updateScheme(c, func(scheme *grading.Scheme) error {
		return scheme.SetTotal(req.Total)
	})
}

func (s *Service) SetQuestionScore(c *fiber.Ctx) error {
	q, err := intParam(c, "q")
	if err != nil {
		return err
	}
	var req questionScoreRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	return s.updateScheme(c, func(scheme *grading.Scheme) error {
		return scheme.SetQuestionScore(q, req.Score)
	})
}

// ValidateScheme reports whether grading can start with the current scheme.
func (s *Service) ValidateScheme(c *fiber.Ctx) error {
	scheme, err := s.schemeOrDefault(c.UserContext(), sessionID(c))
	if err != nil {
		return err
	}
	if err := scheme.Validate(); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"valid": true, "total": scheme.Total, "allocated": scheme.Allocated()})
}
