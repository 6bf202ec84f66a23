package assemblyline

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors
var (
	// ErrInvalidConfiguration indicates a bad header, certificate or connection setting
	ErrInvalidConfiguration = errors.New("invalid assemblyline configuration")
	// ErrMalformedResponse indicates a response the client cannot interpret, such
	// as a success without the expected envelope shape
	ErrMalformedResponse = errors.New("malformed response from assemblyline")
	// ErrInvalidIdentifier indicates a content hash that is not 64 hex characters
	ErrInvalidIdentifier = errors.New("invalid sha256 identifier")
	// ErrMaxRetries indicates the retry ceiling was exceeded
	ErrMaxRetries = errors.New("max retry reached")
)

const (
	maxRetryMessage     = "Max retry reached, could not perform the request."
	unknownErrorMessage = "unknown error"
)

// ClientError represents a request the server rejected, or one that could not
// be completed within the retry ceiling.
type ClientError struct {
	StatusCode int
	Message    string
	// APIVersion is the server's api_server_version, when the body carried one.
	APIVersion string
	// APIResponse is the server's api_response rendered as text, when present.
	APIResponse string
	Err         error
}

// Error implements the error interface
func (e *ClientError) Error() string {
	return fmt.Sprintf("assemblyline API error: status %d: %s", e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if the error indicates a not found response
func (e *ClientError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized checks if the error indicates an authentication failure
func (e *ClientError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRetriesExhausted reports whether the client gave up after the retry ceiling.
func (e *ClientError) IsRetriesExhausted() bool {
	return errors.Is(e.Err, ErrMaxRetries)
}

// TransportError is a failure that happened before any HTTP response was
// received (DNS, TLS, timeouts, dropped connections).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("assemblyline transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newClientError(message string, status int) *ClientError {
	return &ClientError{StatusCode: status, Message: message}
}

func maxRetriesError() *ClientError {
	return &ClientError{
		StatusCode: http.StatusTooManyRequests,
		Message:    maxRetryMessage,
		Err:        ErrMaxRetries,
	}
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
}
