package grader

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	gateway "github.com/mathfe/grader/apigateway"
	"github.com/mathfe/grader/apperr"
	"github.com/mathfe/grader/grading"
	"github.com/sirupsen/logrus"
)

type rubricRequest struct {
	Marks       int    `json:"marks"`
	Description string `json:"description"`
}

type applyEditRequest struct {
	Marks       int    `json:"marks"`
	Description string `json:"description"`
	Scope       string `json:"scope"`
}

// QuestionRubric is the state of one question on one script.
type QuestionRubric struct {
	FileIdx     int                  `json:"file_idx"`
	QuestionNum int                  `json:"question_num"`
	Total       int                  `json:"total"`
	Score       int                  `json:"score"`
	Overdrawn   bool                 `json:"overdrawn,omitempty"`
	Items       []grading.RubricItem `json:"items"`
}

type target struct {
	sid    string
	file   int
	q      int
	scheme grading.Scheme
}

// resolveTarget checks that the file exists and that the question is part of
// the scheme.
func (s *Service) resolveTarget(c *fiber.Ctx) (target, error) {
	t := target{sid: sessionID(c)}
	var err error
	if t.file, err = intParam(c, "file"); err != nil {
		return t, err
	}
	if t.q, err = intParam(c, "q"); err != nil {
		return t, err
	}
	ctx := c.UserContext()
	if err := s.Store.FileExists(ctx, t.sid, t.file); err != nil {
		return t, err
	}
	if t.scheme, err = s.schemeOrDefault(ctx, t.sid); err != nil {
		return t, err
	}
	if _, ok := t.scheme.Questions[t.q]; !ok {
		return t, apperr.WithMessage(apperr.ErrNotFound, fmt.Sprintf("question %d is not in the scheme", t.q))
	}
	return t, nil
}

func (s *Service) questionRubric(ctx context.Context, t target) (QuestionRubric, error) {
	items, err := s.Store.ListQuestionItems(ctx, t.sid, t.file, t.q)
	if err != nil {
		return QuestionRubric{}, err
	}
	score := grading.QuestionScore(t.scheme, t.q, items)
	return QuestionRubric{
		FileIdx:     t.file,
		QuestionNum: t.q,
		Total:       t.scheme.Questions[t.q],
		Score:       score,
		Overdrawn:   score < 0,
		Items:       items,
	}, nil
}

func (s *Service) ListRubric(c *fiber.Ctx) error {
	t, err := s.resolveTarget(c)
	if err != nil {
		return err
	}
	out, err := s.questionRubric(c.UserContext(), t)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// AddRubric attaches a deduction. Positive marks are stored negated.
func (s *Service) AddRubric(c *fiber.Ctx) error {
	t, err := s.resolveTarget(c)
	if err != nil {
		return err
	}
	var req rubricRequest
	if err := parseJSON(c, &req); err != nil {
		return err
	}
	item, err := grading.NewRubricItem(req.Marks, req.Description)
	if err != nil {
		return err
	}
	item.FileIdx, item.QuestionNum = t.file, t.q
	ctx := c.UserContext()
	if _, err := s.Store.AddRubricItem(ctx, t.sid, item); err != nil {
		return err
	}
	rubricChanges.WithLabelValues("add").Inc()
	out, err := s.questionRubric(ctx, t)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

func (s *Service) DeleteRubric(c *fiber.Ctx) error {
	t, err := s.resolveTarget(c)
	if err != nil {
		return err
	}
	id, err := itemParam(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	if err := s.Store.DeleteRubricItem(ctx, t.sid, t.file, t.q, id); err != nil {
		return err
	}
	rubricChanges.WithLabelValues("delete").Inc()
	out, err := s.questionRubric(ctx, t)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (s *Service) proposal(c *fiber.Ctx, t target, marks int, description string) (grading.EditProposal, error) {
	id, err := itemParam(c)
	if err != nil {
		return grading.EditProposal{}, err
	}
	ctx := c.UserContext()
	original, err := s.Store.GetRubricItem(ctx, t.sid, t.file, t.q, id)
	if err != nil {
		return grading.EditProposal{}, err
	}
	all, err := s.Store.ListRubricItems(ctx, t.sid)
	if err != nil {
		return grading.EditProposal{}, err
	}
	return grading.ProposeEdit(original, marks, description, all)
}

// ProposeEdit previews an edit. When other scripts carry the same deduction
// the response lists them so the client can choose a scope.
func (s *Service) ProposeEdit(c *fiber.Ctx) error {
	t, err := s.resolveTarget(c)
	if err != nil {
		return err
	}
	var req rubricRequest
	if err := parseJSON(c, &req); err != nil {
		return err
	}
	p, err := s.proposal(c, t, req.Marks, req.Description)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(p)
}

// ApplyEdit writes an edit to the item and, depending on scope, to the
// matching items on the same question or everywhere.
func (s *Service) ApplyEdit(c *fiber.Ctx) error {
	t, err := s.resolveTarget(c)
	if err != nil {
		return err
	}
	var req applyEditRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	scope, err := grading.ParseScope(req.Scope)
	if err != nil {
		return err
	}
	p, err := s.proposal(c, t, req.Marks, req.Description)
	if err != nil {
		return err
	}
	if !p.HasMatches() {
		scope = grading.ScopeCurrent
	}
	updates := grading.Resolve(p, scope)
	ctx := c.UserContext()
	n, err := s.Store.UpdateRubricItems(ctx, t.sid, updates)
	if err != nil {
		return err
	}
	rubricChanges.WithLabelValues("edit").Add(float64(n))
	s.Logger.WithFields(gateway.LogFields(c)).WithFields(logrus.Fields{
		"scope":   scope,
		"updated": n,
	}).Debug("rubric edit applied")

	out, err := s.questionRubric(ctx, t)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"rubric": out, "updated": n, "scope": scope})
}
