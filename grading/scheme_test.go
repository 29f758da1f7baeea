package grading

import (
	"testing"

	"github.com/mathfe/grader/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemeQuestionCount(t *testing.T) {
	s := NewScheme()
	require.NoError(t, s.SetQuestionCount(3))
	assert.Equal(t, map[int]int{1: 1, 2: 1, 3: 1}, s.Questions)

	require.NoError(t, s.SetQuestionScore(2, 4))
	require.NoError(t, s.SetQuestionCount(2))
	assert.Equal(t, map[int]int{1: 1, 2: 4}, s.Questions)

	assert.ErrorIs(t, s.SetQuestionCount(0), apperr.ErrValidation)
}

func TestSchemeQuestionScoreOverflow(t *testing.T) {
	s := NewScheme()
	require.NoError(t, s.SetQuestionCount(2))
	require.NoError(t, s.SetQuestionScore(1, 6))

	err := s.SetQuestionScore(2, 5)
	assert.ErrorIs(t, err, apperr.ErrSchemeOverflow)
	assert.Equal(t, 1, s.Questions[2])

	require.NoError(t, s.SetQuestionScore(2, 4))
	assert.NoError(t, s.Validate())
}

func TestSchemeValidate(t *testing.T) {
	s := NewScheme()
	err := s.Validate()
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "scheme_incomplete", e.Code)
	assert.Equal(t, 1, e.Fields["allocated"])

	require.NoError(t, s.SetTotal(1))
	assert.NoError(t, s.Validate())
}

func TestSchemeValidateGaps(t *testing.T) {
	s := Scheme{Total: 10, Questions: map[int]int{1: 5, 7: 5}}
	assert.False(t, s.Numbered())
	assert.ErrorIs(t, s.Validate(), apperr.ErrSchemeIncomplete)

	s.Questions = map[int]int{1: 5, 2: 5}
	assert.True(t, s.Numbered())
	assert.NoError(t, s.Validate())
}

func TestSchemeUnknownQuestion(t *testing.T) {
	s := NewScheme()
	assert.ErrorIs(t, s.SetQuestionScore(7, 1), apperr.ErrNotFound)
}

func TestQuestionNumbersSorted(t *testing.T) {
	s := Scheme{Questions: map[int]int{3: 1, 1: 1, 2: 1}}
	assert.Equal(t, []int{1, 2, 3}, s.QuestionNumbers())
}
