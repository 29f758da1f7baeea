package grading

import (
	"fmt"

	"github.com/mathfe/grader/apperr"
)

const (
	defaultQuestionMarks = 1
	defaultTotal         = 10
)

// NewScheme is the scheme a session starts with: one question worth one mark
// out of a total of ten.
func NewScheme() Scheme {
	return Scheme{Total: defaultTotal, Questions: map[int]int{1: defaultQuestionMarks}}
}

// SetQuestionCount grows or shrinks the scheme to n questions. New questions
// are worth one mark.
func (s *Scheme) SetQuestionCount(n int) error {
	if n < 1 {
		return apperr.WithMessage(apperr.ErrValidation, "number of questions must be at least 1")
	}
	if s.Questions == nil {
		s.Questions = map[int]int{}
	}
	for q := 1; q <= n; q++ {
		if _, ok := s.Questions[q]; !ok {
			s.Questions[q] = defaultQuestionMarks
		}
	}
	for q := range s.Questions {
		if q > n || q < 1 {
			delete(s.Questions, q)
		}
	}
	return nil
}

func (s *Scheme) SetTotal(total int) error {
	if total < 1 {
		return apperr.WithMessage(apperr.ErrValidation, "total score must be at least 1")
	}
	s.Total = total
	return nil
}

// SetQuestionScore allocates score marks to question q. The scheme is left
// untouched when the allocation would exceed the total.
func (s *Scheme) SetQuestionScore(q, score int) error {
	if _, ok := s.Questions[q]; !ok {
		return apperr.WithMessage(apperr.ErrNotFound, fmt.Sprintf("question %d is not in the scheme", q))
	}
	if score < 1 {
		return apperr.WithMessage(apperr.ErrValidation, "question score must be at least 1")
	}
	sum := score
	for other, m := range s.Questions {
		if other != q {
			sum += m
		}
	}
	if s.Total > 0 && sum > s.Total {
		return apperr.ErrSchemeOverflow
	}
	s.Questions[q] = score
	return nil
}

// Numbered reports whether the questions run from 1 to n without gaps.
func (s Scheme) Numbered() bool {
	for q := 1; q <= len(s.Questions); q++ {
		if _, ok := s.Questions[q]; !ok {
			return false
		}
	}
	return true
}

// Validate reports whether grading can start: the questions must be numbered
// without gaps and account for exactly the total.
func (s Scheme) Validate() error {
	if len(s.Questions) == 0 || !s.Numbered() || s.Allocated() != s.Total {
		return apperr.WithFields(apperr.ErrSchemeIncomplete, map[string]any{
			"total":     s.Total,
			"allocated": s.Allocated(),
		})
	}
	return nil
}
