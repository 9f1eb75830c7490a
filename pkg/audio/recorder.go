package audio

import (
	"log/slog"
	"sync"
)

// Status is the recorder lifecycle state.
type Status string

const (
	// StatusIdle means no device is streaming.
	StatusIdle Status = "idle"
	// StatusRecording means frames are flowing to the consumer.
	StatusRecording Status = "recording"
	// StatusPaused means the device is held but frames are not
	// delivered.
	StatusPaused Status = "paused"
)

// Recorder captures microphone audio and hands PCM16 frames to a
// consumer callback. Device acquisition is lazy: construction never
// touches hardware, Begin does.
type Recorder struct {
	device     CaptureDevice
	sampleRate int
	logger     *slog.Logger

	mu      sync.Mutex
	status  Status
	opened  bool
	onFrame func(pcm []byte)

	analyzer *analyzer
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderSampleRate overrides the default sample rate.
func WithRecorderSampleRate(rate int) RecorderOption {
	return func(r *Recorder) { r.sampleRate = rate }
}

// WithRecorderLogger sets the structured logger.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// NewRecorder creates a recorder around the given capture device.
func NewRecorder(device CaptureDevice, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		device:     device,
		sampleRate: DefaultSampleRate,
		logger:     slog.Default(),
		status:     StatusIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.analyzer = newAnalyzer(r.sampleRate)
	return r
}

// Begin acquires the capture device. Idempotent; a DeviceError means
// the hardware could not be opened and the recorder stays idle.
func (r *Recorder) Begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.opened {
		return nil
	}
	if err := r.device.Open(r.handleFrame); err != nil {
		return newDeviceError("open", r.device.Name(), err)
	}
	r.opened = true
	r.logger.Debug("capture device acquired", "backend", r.device.Name())
	return nil
}

// Record starts streaming frames to onFrame. Calling it while
// already recording is a no-op: frames are never duplicated.
func (r *Recorder) Record(onFrame func(pcm []byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusRecording {
		return nil
	}
	if !r.opened {
		if err := r.device.Open(r.handleFrame); err != nil {
			return newDeviceError("open", r.device.Name(), err)
		}
		r.opened = true
	}
	r.onFrame = onFrame
	if err := r.device.Start(); err != nil {
		return newDeviceError("start", r.device.Name(), err)
	}
	r.status = StatusRecording
	return nil
}

// Pause halts frame delivery without releasing the device. Safe when
// not recording.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusRecording {
		return nil
	}
	if err := r.device.Stop(); err != nil {
		return newDeviceError("stop", r.device.Name(), err)
	}
	r.status = StatusPaused
	return nil
}

// Status reports the current lifecycle state.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Frequencies returns the current capture spectrum for band. When
// the recorder is not actively recording it returns a zero spectrum,
// never stale data.
func (r *Recorder) Frequencies(band Band) []float64 {
	r.mu.Lock()
	recording := r.status == StatusRecording
	r.mu.Unlock()

	if !recording {
		return ZeroSpectrum()
	}
	return r.analyzer.spectrum(band)
}

// End stops capture and releases the device, returning the recorder
// to idle. Always safe, even when the recorder never started, and the
// next Begin or Record re-acquires the device: a session teardown
// never makes a later session unstartable.
func (r *Recorder) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = StatusIdle
	r.onFrame = nil
	r.analyzer.reset()

	if !r.opened {
		return nil
	}
	r.opened = false
	if err := r.device.Close(); err != nil {
		return newDeviceError("close", r.device.Name(), err)
	}
	return nil
}

// handleFrame runs on the device's delivery path.
func (r *Recorder) handleFrame(pcm []byte) {
	r.mu.Lock()
	fn := r.onFrame
	recording := r.status == StatusRecording
	r.mu.Unlock()

	if !recording {
		return
	}
	r.analyzer.push(pcm)
	if fn != nil {
		fn(pcm)
	}
}
