package grader

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	gateway "github.com/mathfe/grader/apigateway"
	"github.com/mathfe/grader/apperr"
	"github.com/mathfe/grader/grading"
	"github.com/mathfe/grader/report"
)

// Report renders the grade report of the student who wrote the given script.
// Every script of that student in the session is included.
func (s *Service) Report(c *fiber.Ctx) error {
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
	studentNum := nums[idx]
	if studentNum == "" {
		return apperr.ErrNoGradingData
	}
	scheme, err := s.Store.GetScheme(ctx, sid)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.ErrNoGradingData
	}
	if err != nil {
		return err
	}
	items, err := s.Store.ListRubricItems(ctx, sid)
	if err != nil {
		return err
	}
	var files []int
	for f, n := range nums {
		if n == studentNum {
			files = append(files, f)
		}
	}
	scripts := grading.ScriptsFromItems(items, files, nums)

	rep := report.Build(scripts, scheme, studentNum)
	var buf bytes.Buffer
	if err := rep.Render(&buf); err != nil {
		return apperr.Wrap(err, apperr.ErrInternal, fmt.Sprintf("render report for %s", studentNum))
	}
	reportsRendered.Inc()
	s.Logger.WithFields(gateway.LogFields(c)).WithField("student_number", studentNum).Info("grade report rendered")
	return sendPDF(c, rep.Filename(), buf.Bytes(), true)
}
