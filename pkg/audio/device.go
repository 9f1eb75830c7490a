// Package audio provides microphone capture and streaming playback
// for the interview console: raw PCM16 mono frames in both
// directions, frame-accurate interruption offsets, and frequency
// spectra for the visualizer.
package audio

import "io"

// DefaultSampleRate is the wire sample rate required by the realtime
// backend.
const DefaultSampleRate = 24000

// CaptureDevice abstracts a microphone backend. Implementations:
// malgo for real hardware, a mock for tests.
type CaptureDevice interface {
	// Open acquires the device and registers the frame callback.
	// No frames are delivered until Start.
	Open(onData func(pcm []byte)) error

	// Start begins frame delivery.
	Start() error

	// Stop halts frame delivery. Safe to call repeatedly; the
	// device stays acquired.
	Stop() error

	// Name returns the backend name.
	Name() string

	// Close releases the device. After Close the device cannot be
	// reopened.
	io.Closer
}

// PlaybackDevice abstracts a speaker backend. Implementations: oto
// for real hardware, a mock for tests.
type PlaybackDevice interface {
	// Start begins pulling PCM16 from src and playing it. The
	// reader must return silence rather than block when it has no
	// data queued.
	Start(src io.Reader) error

	// Reset discards audio buffered inside the device without
	// releasing it. Used on interruption.
	Reset() error

	// Name returns the backend name.
	Name() string

	// Close stops playback and releases the device.
	io.Closer
}
