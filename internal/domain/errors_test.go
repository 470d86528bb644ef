package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Dispatcher.Run", ErrToolNotFound, "tool 'foo'")
	want := "Dispatcher.Run: tool 'foo': tool not found"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Orchestrator.Run", ErrMaxIterations, "")
	want := "Orchestrator.Run: orchestrator reached max iterations"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Planner.Generate", ErrPlanRejected, "150 creates")
	if !errors.Is(err, ErrPlanRejected) {
		t.Error("errors.Is should match ErrPlanRejected")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := NewDomainError("LLM.Chat", ErrProviderNotFound, "anthropic")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "LLM.Chat" {
		t.Errorf("Op = %q, want %q", de.Op, "LLM.Chat")
	}
}

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeToolNotFound, ErrorCodeOf(ErrToolNotFound))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
	assert.Equal(t, CodePlanRejected, ErrorCodeOf(ErrPlanRejected))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	err := NewSubSystemError("object", "Dispatcher.move", ErrNotFound, "obj-1")
	assert.Equal(t, CodeObjectNotFound, ErrorCodeOf(err))

	err = NewSubSystemError("model", "Orchestrator.iterate", ErrTimeout, "30s elapsed")
	assert.Equal(t, CodeModelTimeout, ErrorCodeOf(err))

	// Unmapped subsystem falls back to the category code.
	err = NewSubSystemError("nonsense", "X", ErrTimeout, "")
	assert.Equal(t, CodeTimeout, ErrorCodeOf(err))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrRateLimit)
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(ErrTimeout))
	assert.True(t, IsRetryableError(NewDomainError("Planner.Validate", ErrPlanRejected, "")))
	assert.False(t, IsRetryableError(ErrAuthInvalid))
	assert.False(t, IsRetryableError(nil))
}
