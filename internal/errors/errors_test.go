package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestMiroyoError_Error(t *testing.T) {
	err := &MiroyoError{
		Code:    ErrForbidden,
		Status:  403,
		Message: "origin mismatch",
	}

	expected := "forbidden: origin mismatch"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestMiroyoError_ErrorWithCause(t *testing.T) {
	err := NewUpstream(fmt.Errorf("connection reset"))

	expected := "server_error: model call failed: connection reset"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name     string
		err      *MiroyoError
		code     ErrorCode
		status   int
		category Category
	}{
		{"bad request", NewBadRequest("text is required"), ErrBadRequest, 400, CategoryClientInput},
		{"method not allowed", NewMethodNotAllowed("GET"), ErrMethodNotAllowed, 405, CategoryClientInput},
		{"unsupported media type", NewUnsupportedMediaType("text/plain"), ErrUnsupportedMediaType, 415, CategoryClientInput},
		{"forbidden", NewForbidden("cross-site"), ErrForbidden, 403, CategoryAuthorization},
		{"rate limited", NewRateLimited("1.2.3.4"), ErrRateLimit, 429, CategoryRateLimit},
		{"upstream rate limited", NewUpstreamRateLimited(cause), ErrRateLimit, 429, CategoryRateLimit},
		{"timeout", NewTimeout(cause), ErrTimeout, 504, CategoryTimeout},
		{"misconfigured", NewMisconfigured("missing credential"), ErrServerError, 500, CategoryMisconfiguration},
		{"upstream", NewUpstream(cause), ErrServerError, 500, CategoryUpstream},
		{"share too large", NewShareTooLarge(2800, 3000), ErrShareTooLarge, 413, CategoryCodec},
		{"invalid share", NewInvalidShare(cause), ErrInvalidShare, 400, CategoryCodec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if tt.err.Status != tt.status {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.status)
			}
			if tt.err.Category != tt.category {
				t.Errorf("Category = %q, want %q", tt.err.Category, tt.category)
			}
		})
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		originalErr := fmt.Errorf("database connection failed")
		err := NewInternal(originalErr)

		if err.Code != ErrServerError {
			t.Errorf("Code = %q, want %q", err.Code, ErrServerError)
		}
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if !stderrors.Is(err, originalErr) {
			t.Error("expected cause to be reachable through Unwrap")
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)

		if err.Unwrap() != nil {
			t.Errorf("Unwrap() = %v, want nil", err.Unwrap())
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		err := NewRateLimited("unknown")
		if !Is(err, ErrRateLimit) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		err := NewRateLimited("unknown")
		if Is(err, ErrTimeout) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("non-MiroyoError", func(t *testing.T) {
		err := fmt.Errorf("plain error")
		if Is(err, ErrServerError) {
			t.Error("Is() = true, want false for non-MiroyoError")
		}
	})

	t.Run("wrapped MiroyoError", func(t *testing.T) {
		wrapped := fmt.Errorf("decode: %w", NewInvalidShare(nil))
		if !Is(wrapped, ErrInvalidShare) {
			t.Error("Is() = false, want true for wrapped MiroyoError")
		}
	})
}

func TestFrom(t *testing.T) {
	known := NewForbidden("x")
	if got := From(known); got != known {
		t.Errorf("From(known) = %v, want same pointer", got)
	}

	got := From(fmt.Errorf("plain"))
	if got.Code != ErrServerError || got.Status != 500 {
		t.Errorf("From(plain) = %s/%d, want server_error/500", got.Code, got.Status)
	}
}

func TestLoggableCause(t *testing.T) {
	cause := fmt.Errorf("upstream echoed input: PRIVATE-USER-TEXT")

	for _, err := range []*MiroyoError{NewUpstream(cause), NewUpstreamRateLimited(cause), NewTimeout(cause)} {
		if got := err.LoggableCause(); got != nil {
			t.Errorf("%s: LoggableCause() = %v, want nil", err.Code, got)
		}
		if err.Err != cause {
			t.Errorf("%s: Err = %v, want the cause kept for callers", err.Code, err.Err)
		}
	}

	internal := NewInternal(cause)
	if got := internal.LoggableCause(); got != cause {
		t.Errorf("NewInternal: LoggableCause() = %v, want %v", got, cause)
	}
	if got := NewForbidden("x").LoggableCause(); got != nil {
		t.Errorf("NewForbidden: LoggableCause() = %v, want nil", got)
	}
}
