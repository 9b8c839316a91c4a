package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Format(t *testing.T) {
	err := NewDomainError("locator.locate", ErrElementNotFound, "search box")
	assert.Equal(t, "locator.locate: search box: element not found", err.Error())

	bare := NewDomainError("locator.locate", ErrElementNotFound, "")
	assert.Equal(t, "locator.locate: element not found", bare.Error())
}

func TestDomainError_Unwrap(t *testing.T) {
	err := NewDomainError("navigator.goto", ErrNavigationTimeout, "https://example.com")
	assert.ErrorIs(t, err, ErrNavigationTimeout)

	wrapped := WrapOp("orchestrator.step", err)
	assert.ErrorIs(t, wrapped, ErrNavigationTimeout)
}

func TestWrapOp_NilPassthrough(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
}

func TestIsStepRecoverable(t *testing.T) {
	recoverable := []error{ErrElementNotFound, ErrInteractionFailed, ErrNavigationTimeout}
	for _, err := range recoverable {
		assert.True(t, IsStepRecoverable(err), err.Error())
		assert.True(t, IsStepRecoverable(NewDomainError("op", err, "wrapped")), err.Error())
	}

	terminal := []error{ErrBrowserUnavailable, ErrDestructiveBlocked, ErrTaskDeadline, ErrTaskAborted, errors.New("anything else")}
	for _, err := range terminal {
		assert.False(t, IsStepRecoverable(err), err.Error())
	}
}

func TestErrorCodeOf(t *testing.T) {
	assert.Equal(t, CodeElementNotFound, ErrorCodeOf(ErrElementNotFound))
	assert.Equal(t, CodeBrowserUnavailable, ErrorCodeOf(NewDomainError("op", ErrBrowserUnavailable, "")))
	assert.Equal(t, CodeRunNotFound, ErrorCodeOf(fmt.Errorf("task run x: %w", ErrRunNotFound)))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("mystery")))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}
