package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TransportError is returned when the backend could not be reached at all:
// connection refused, DNS failure, timeout or a cancelled request.
type TransportError struct {
	Op      string
	Timeout bool
	Cause   error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: network request failed: %v", e.Op, e.Cause)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// RemoteError is returned when the backend answered with a non-success status.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: server returned status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Retryable reports whether repeating the same request later may succeed.
func (e *RemoteError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// Unauthorized reports whether the session credential was rejected.
func (e *RemoteError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// DuplicateEntryError is returned by AddWatchlistEntry when the backend
// reports the symbol is already in the watchlist (HTTP 409).
type DuplicateEntryError struct {
	Symbol string
	*RemoteError
}

// Error implements the error interface
func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("%s is already in the watchlist", e.Symbol)
}

// Unwrap exposes the underlying RemoteError to errors.As
func (e *DuplicateEntryError) Unwrap() error {
	return e.RemoteError
}

// DecodeError is returned when a success response carries a body that cannot
// be parsed into the expected payload.
type DecodeError struct {
	Op         string
	StatusCode int
	Cause      error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: invalid response body (status %d): %v", e.Op, e.StatusCode, e.Cause)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// NewTransportError classifies a request failure that produced no response.
func NewTransportError(op string, cause error) *TransportError {
	return &TransportError{
		Op:      op,
		Timeout: isTimeout(cause),
		Cause:   cause,
	}
}

// NewRemoteError builds a RemoteError, falling back to the status text when
// the server sent no message.
func NewRemoteError(op string, statusCode int, message string) *RemoteError {
	if message == "" {
		message = http.StatusText(statusCode)
	}
	if message == "" {
		message = fmt.Sprintf("unexpected status code: %d", statusCode)
	}
	return &RemoteError{
		Op:         op,
		StatusCode: statusCode,
		Message:    message,
	}
}

// IsDuplicate reports whether err is (or wraps) a DuplicateEntryError.
func IsDuplicate(err error) bool {
	var dup *DuplicateEntryError
	return errors.As(err, &dup)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode returns the HTTP status carried by err, or 0 if it has none.
func StatusCode(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return de.StatusCode
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
