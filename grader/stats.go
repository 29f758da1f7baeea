package grader

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/mathfe/grader/apperr"
	"github.com/mathfe/grader/grading"
)

const histogramBins = 10

// gradedScripts loads the scripts that count towards statistics: those with
// at least one deduction or marked completed. A session without a saved scheme
// or without any graded script has no grading data.
func (s *Service) gradedScripts(ctx context.Context, sid string) ([]grading.Script, grading.Scheme, error) {
	scheme, err := s.Store.GetScheme(ctx, sid)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, grading.Scheme{}, apperr.ErrNoGradingData
	}
	if err != nil {
		return nil, grading.Scheme{}, err
	}
	items, err := s.Store.ListRubricItems(ctx, sid)
	if err != nil {
		return nil, scheme, err
	}
	done, err := s.Store.Completed(ctx, sid)
	if err != nil {
		return nil, scheme, err
	}
	nums, err := s.Store.StudentNumbers(ctx, sid)
	if err != nil {
		return nil, scheme, err
	}
	files := make([]int, 0, len(done))
	for idx := range done {
		files = append(files, idx)
	}
	scripts := grading.ScriptsFromItems(items, files, nums)
	if len(scripts) == 0 {
		return nil, scheme, apperr.ErrNoGradingData
	}
	return scripts, scheme, nil
}

func questionQuery(c *fiber.Ctx, scheme grading.Scheme, required bool) (int, error) {
	raw := c.Query("question")
	if raw == "" {
		if required {
			return 0, apperr.WithFields(apperr.ErrValidation, map[string]any{"question": "is required"})
		}
		return 0, nil
	}
	q, err := strconv.Atoi(raw)
	if err != nil || q < 0 {
		return 0, apperr.WithFields(apperr.ErrValidation, map[string]any{"question": "must be a question number"})
	}
	if q == 0 {
		if required {
			return 0, apperr.WithFields(apperr.ErrValidation, map[string]any{"question": "must be a question number"})
		}
		return 0, nil
	}
	if _, ok := scheme.Questions[q]; !ok {
		return 0, apperr.WithMessage(apperr.ErrNotFound, fmt.Sprintf("question %d is not in the scheme", q))
	}
	return q, nil
}

func (s *Service) QuestionStats(c *fiber.Ctx) error {
	scripts, scheme, err := s.gradedScripts(c.UserContext(), sessionID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(grading.QuestionStats(scripts, scheme))
}

func (s *Service) OverallStats(c *fiber.Ctx) error {
	scripts, scheme, err := s.gradedScripts(c.UserContext(), sessionID(c))
	if err != nil {
		return err
	}
	stat, ok := grading.OverallStats(scripts, scheme)
	if !ok {
		return apperr.ErrNoGradingData
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"total": scheme.Total, "scripts": len(scripts), "stats": stat})
}

// RubricStats breaks down how often each deduction was given on a question.
func (s *Service) RubricStats(c *fiber.Ctx) error {
	scripts, scheme, err := s.gradedScripts(c.UserContext(), sessionID(c))
	if err != nil {
		return err
	}
	q, err := questionQuery(c, scheme, true)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"question": q, "rows": grading.RubricBreakdown(scripts, q)})
}

// HistogramStats bins marks on one question, or total marks when no question
// is given.
func (s *Service) HistogramStats(c *fiber.Ctx) error {
	scripts, scheme, err := s.gradedScripts(c.UserContext(), sessionID(c))
	if err != nil {
		return err
	}
	q, err := questionQuery(c, scheme, false)
	if err != nil {
		return err
	}
	values := grading.StudentTotalMarks(scripts, scheme, "")
	if q > 0 {
		values = grading.MarksByQuestion(scripts, scheme, "")[q]
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"question": q, "bins": grading.Histogram(values, histogramBins)})
}
