package llm

import (
	"errors"
	"net/http"
	"testing"

	"boardpilot/internal/domain"
)

func TestMapHTTPError429(t *testing.T) {
	err := mapHTTPError(http.StatusTooManyRequests, []byte(`{"error":"rate limit exceeded"}`))
	if !errors.Is(err, domain.ErrProviderError) {
		t.Errorf("expected ErrProviderError, got %v", err)
	}
	if got := err.Error(); got == "" {
		t.Error("error message should not be empty")
	}
}

func TestMapHTTPError401(t *testing.T) {
	err := mapHTTPError(http.StatusUnauthorized, []byte(`{"error":"invalid api key"}`))
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("expected ErrAuthInvalid, got %v", err)
	}
}

func TestMapHTTPError403(t *testing.T) {
	err := mapHTTPError(http.StatusForbidden, []byte(`{"error":"forbidden"}`))
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("expected ErrAuthInvalid, got %v", err)
	}
}

func TestMapHTTPError5xxRetryable(t *testing.T) {
	for _, code := range []int{
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
	} {
		err := mapHTTPError(code, []byte(`upstream error`))
		if !errors.Is(err, domain.ErrProviderError) {
			t.Errorf("status %d: expected ErrProviderError (retryable), got %v", code, err)
		}
		if !domain.IsRetryableError(err) {
			t.Errorf("status %d: expected retryable classification", code)
		}
	}
}

func TestMapHTTPErrorUnknownStatus(t *testing.T) {
	err := mapHTTPError(418, []byte(`I'm a teapot`))
	if err == nil {
		t.Fatal("expected error")
	}
	// Should not wrap any known sentinel.
	if errors.Is(err, domain.ErrProviderError) || errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("expected no sentinel wrapping for unknown status, got %v", err)
	}
}

func TestMapHTTPErrorIncludesBody(t *testing.T) {
	body := `{"error":{"message":"detailed error info from API"}}`
	err := mapHTTPError(http.StatusTooManyRequests, []byte(body))
	if got := err.Error(); got == "" {
		t.Fatal("error message should not be empty")
	}
	// Error message should include the body for debugging.
	if got := err.Error(); len(got) < len("API error 429") {
		t.Errorf("error message too short: %q", got)
	}
}
