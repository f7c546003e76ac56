package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Errors returned by object stores and the client.
//
// Backends wrap these sentinels so callers can classify failures with
// errors.Is, independent of the transport:
//
//	if errors.Is(err, remote.ErrNonFastForward) {
//	    // Someone else advanced the branch
//	}
var (
	// ErrUnauthenticated is returned when the credential is missing or invalid.
	ErrUnauthenticated = errors.New("remote rejected credentials")

	// ErrForbidden is returned when the credential is valid but lacks access.
	ErrForbidden = errors.New("access to remote denied")

	// ErrRateLimited is returned when the remote throttles requests.
	ErrRateLimited = errors.New("remote rate limit exceeded")

	// ErrNotFound is returned when a ref, object or path does not exist.
	ErrNotFound = errors.New("remote object not found")

	// ErrEmptyRepo is returned when the repository has no commits at all.
	ErrEmptyRepo = errors.New("remote repository is empty")

	// ErrNonFastForward is returned when a conditional ref update loses
	// against a concurrent writer.
	ErrNonFastForward = errors.New("ref update is not a fast-forward")

	// ErrRefExists is returned when creating a ref that already exists.
	ErrRefExists = errors.New("ref already exists")

	// ErrInvalid is returned when the remote rejects a request as malformed.
	ErrInvalid = errors.New("remote rejected request")

	// ErrServer is returned for transient server-side failures.
	ErrServer = errors.New("remote server error")
)

// APIError is a failed remote call with its status code. It unwraps to the
// sentinel matching the status.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

// NewAPIError classifies a failed response. The message body is inspected
// where the status code alone is ambiguous (403 rate limits, 409 empty
// repositories, 422 ref updates).
func NewAPIError(status int, message string) *APIError {
	return &APIError{StatusCode: status, Message: message, Err: classify(status, message)}
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v (status %d)", e.Err, e.StatusCode)
	}
	return fmt.Sprintf("%v (status %d): %s", e.Err, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func classify(status int, message string) error {
	msg := strings.ToLower(message)
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case status == http.StatusForbidden && strings.Contains(msg, "rate limit"):
		return ErrRateLimited
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict && strings.Contains(msg, "empty"):
		return ErrEmptyRepo
	case status == http.StatusConflict:
		return ErrNonFastForward
	case status == http.StatusUnprocessableEntity && strings.Contains(msg, "already exists"):
		return ErrRefExists
	case status == http.StatusUnprocessableEntity && strings.Contains(msg, "fast forward"),
		status == http.StatusUnprocessableEntity && strings.Contains(msg, "fast-forward"):
		return ErrNonFastForward
	case status >= 500:
		return ErrServer
	default:
		return ErrInvalid
	}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsRetryable returns true if the error is likely to succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Server hiccups are transient
	if errors.Is(err, ErrServer) {
		return true
	}

	// A moved ref succeeds against a fresh base
	if errors.Is(err, ErrNonFastForward) {
		return true
	}

	return false
}

// IsFatal returns true if retrying with the same credential cannot help.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrRateLimited)
}

// IsEmpty returns true if err means "nothing here yet" rather than failure.
func IsEmpty(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrEmptyRepo)
}
