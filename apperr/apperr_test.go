package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCodeAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, ErrDatabase, "insert rubric item")

	assert.Equal(t, http.StatusInternalServerError, Status(err))
	assert.Equal(t, "database_error", Code(err))
	assert.Equal(t, "insert rubric item", Message(err))
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrDatabase)
}

func TestStatusOfPlainError(t *testing.T) {
	err := fmt.Errorf("boom")
	assert.Equal(t, http.StatusInternalServerError, Status(err))
	assert.Equal(t, "internal_error", Code(err))
	assert.Equal(t, map[string]any{"code": "internal_error", "message": "boom"}, Payload(err))
}

func TestPayloadWithFields(t *testing.T) {
	err := WithFields(ErrValidation, map[string]any{"marks": "marks cannot be 0"})
	payload := Payload(fmt.Errorf("add item: %w", err))

	assert.Equal(t, "validation_error", payload["code"])
	assert.Equal(t, map[string]any{"marks": "marks cannot be 0"}, payload["fields"])
	assert.Equal(t, http.StatusBadRequest, Status(err))
}

func TestWithMessageDoesNotMutateBase(t *testing.T) {
	err := WithMessage(ErrNotFound, "file 3 not found")
	assert.Equal(t, "file 3 not found", err.Error())
	assert.Equal(t, "", ErrNotFound.Message)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
}
