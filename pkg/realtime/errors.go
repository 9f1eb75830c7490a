package realtime

import (
	"errors"
	"fmt"
)

// Sentinel errors for the realtime package.
var (
	// ErrMissingAPIKey indicates neither an API key nor a relay URL was provided.
	ErrMissingAPIKey = errors.New("realtime: API key or relay URL is required")

	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrAlreadyConnected indicates the client is already connected.
	ErrAlreadyConnected = errors.New("realtime: already connected")

	// ErrConnectionClosed indicates the stream was closed unexpectedly.
	ErrConnectionClosed = errors.New("realtime: connection closed")

	// ErrSendFailed indicates sending a message failed.
	ErrSendFailed = errors.New("realtime: send failed")

	// ErrDuplicateTool indicates a tool with the same name is already registered.
	ErrDuplicateTool = errors.New("realtime: tool already registered")
)

// ConnectionError represents a failure to establish or keep the
// duplex event stream. Connect failures are surfaced to the caller
// and never retried automatically.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("realtime: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("realtime: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error) *ConnectionError {
	return &ConnectionError{Reason: reason, Cause: cause}
}

// ProtocolError represents a malformed or unexpected server event.
// Protocol errors are logged and never fatal to the session.
type ProtocolError struct {
	// Code is the error code reported by the backend, if any.
	Code string

	// Message is the human-readable error message.
	Message string

	// EventType is the type of the offending event, if known.
	EventType string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: protocol error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("realtime: protocol error: %s", e.Message)
}

// ToolExecutionError represents a tool handler that failed or
// panicked. The failure is reported back to the backend as the tool
// result; the session continues.
type ToolExecutionError struct {
	// Tool is the name of the tool that failed.
	Tool string

	// Cause is the handler error or recovered panic.
	Cause error
}

// Error implements the error interface.
func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("realtime: tool %q failed: %v", e.Tool, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// IsNotConnected returns true if the error indicates no connection.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionClosed)
}
