package remote

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAPIError(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    error
	}{
		{401, "Bad credentials", ErrUnauthenticated},
		{403, "API rate limit exceeded for user ID 1.", ErrRateLimited},
		{403, "Resource not accessible by integration", ErrForbidden},
		{429, "", ErrRateLimited},
		{404, "Not Found", ErrNotFound},
		{409, "Git Repository is empty.", ErrEmptyRepo},
		{409, "Conflict", ErrNonFastForward},
		{422, "Update is not a fast forward", ErrNonFastForward},
		{422, "Reference already exists", ErrRefExists},
		{422, "Invalid request", ErrInvalid},
		{502, "Bad Gateway", ErrServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d %s", tt.status, tt.message), func(t *testing.T) {
			err := NewAPIError(tt.status, tt.message)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewAPIError(%d, %q) = %v, want %v", tt.status, tt.message, err, tt.want)
			}
			if StatusCode(fmt.Errorf("wrapped: %w", err)) != tt.status {
				t.Errorf("StatusCode lost through wrapping")
			}
		})
	}
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		fatal     bool
		empty     bool
	}{
		{"nil", nil, false, false, false},
		{"server", NewAPIError(500, ""), true, false, false},
		{"non fast forward", fmt.Errorf("push: %w", ErrNonFastForward), true, false, false},
		{"unauthenticated", NewAPIError(401, ""), false, true, false},
		{"rate limited", ErrRateLimited, false, true, false},
		{"forbidden", ErrForbidden, false, true, false},
		{"not found", NewAPIError(404, ""), false, false, true},
		{"empty repo", ErrEmptyRepo, false, false, true},
		{"other", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal = %v, want %v", got, tt.fatal)
			}
			if got := IsEmpty(tt.err); got != tt.empty {
				t.Errorf("IsEmpty = %v, want %v", got, tt.empty)
			}
		})
	}
}
