package sauc

import (
	"errors"
	"fmt"
)

// ErrUnconfigured is returned when the app key or access key is missing.
var ErrUnconfigured = errors.New("sauc: app key and access key not configured")

// ErrUpstreamClosed is returned when the server closes the connection
// before sending its final package.
var ErrUpstreamClosed = errors.New("sauc: connection closed before final result")

// Error is a protocol-level error reported by the ASR service.
type Error struct {
	// Error code from the error frame
	Code int `json:"code"`

	// Human-readable message
	Message string `json:"message"`

	// Server-side log ID from the X-Tt-Logid response header, when known
	LogID string `json:"logid,omitempty"`
}

func (e *Error) Error() string {
	if e.LogID != "" {
		return fmt.Sprintf("sauc: %s (code=%d, logid=%s)", e.Message, e.Code, e.LogID)
	}
	return fmt.Sprintf("sauc: %s (code=%d)", e.Message, e.Code)
}

// AsError extracts a protocol *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// wrapError wraps err with a short context message.
func wrapError(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}
