package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the component was already ended or closed.
	ErrClosed = errors.New("audio: closed")

	// ErrNotConnected indicates the player has no active output device.
	ErrNotConnected = errors.New("audio: player not connected")
)

// DeviceError represents an audio hardware failure: a device that
// cannot be acquired, started or written to. Device acquisition is
// lazy, so these surface from Begin and Connect rather than from
// construction.
type DeviceError struct {
	// Op is the operation that failed ("open", "start", "stop").
	Op string

	// Backend is the device backend name ("malgo", "oto", "mock").
	Backend string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio: %s device %s failed: %v", e.Backend, e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *DeviceError) Unwrap() error {
	return e.Cause
}

func newDeviceError(op, backend string, cause error) *DeviceError {
	return &DeviceError{Op: op, Backend: backend, Cause: cause}
}
