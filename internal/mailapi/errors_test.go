package mailapi

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Classification(t *testing.T) {
	authErr := NewError(KindAuth, "ListMailboxes", errors.New("401"))
	notFound := NewError(KindNotFound, "DeleteDraft", nil)
	plain := errors.New("connection reset")

	assert.True(t, IsAuth(authErr))
	assert.False(t, IsAuth(notFound))
	assert.False(t, IsAuth(plain))
	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsValidation(NewError(KindValidation, "CreateDraft", nil)))
}

func TestError_ClassificationSurvivesWrapping(t *testing.T) {
	inner := NewError(KindAuth, "GetTask", errors.New("401"))
	wrapped := fmt.Errorf("failed to poll task: %w", inner)

	assert.True(t, IsAuth(wrapped))
	assert.Equal(t, KindAuth, ErrKind(wrapped))
}

func TestErrKind_DefaultsToTransient(t *testing.T) {
	assert.Equal(t, KindTransient, ErrKind(errors.New("socket closed")))
}

func TestError_Message(t *testing.T) {
	err := NewError(KindNotFound, "DeleteDraft", errors.New("410 gone"))
	assert.Equal(t, "DeleteDraft: not_found: 410 gone", err.Error())

	bare := NewError(KindAuth, "ListThreads", nil)
	assert.Equal(t, "ListThreads: auth", bare.Error())
}

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("401")
	err := NewError(KindAuth, "op", inner)
	assert.ErrorIs(t, err, inner)
}
