package audio

import (
	"io"
	"math"
	"sync"
)

// MockCapture is a hardware-free capture device for tests. Frames
// are injected with Emit, or generated as a sine tone with
// EmitTone.
type MockCapture struct {
	mu      sync.Mutex
	onData  func(pcm []byte)
	opened  bool
	started bool
	closes  int

	// OpenErr, when set, is returned from Open to simulate a
	// missing or busy device.
	OpenErr error
}

// NewMockCapture creates a mock capture device.
func NewMockCapture() *MockCapture {
	return &MockCapture{}
}

// Name returns the backend name.
func (m *MockCapture) Name() string { return "mock" }

// Open acquires the fake device. Like hardware, a released device
// can be opened again.
func (m *MockCapture) Open(onData func(pcm []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return m.OpenErr
	}
	m.opened = true
	m.onData = onData
	return nil
}

// Start begins frame delivery.
func (m *MockCapture) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return ErrClosed
	}
	m.started = true
	return nil
}

// Stop halts frame delivery.
func (m *MockCapture) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

// Close releases the fake device.
func (m *MockCapture) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.opened = false
	m.started = false
	m.onData = nil
	return nil
}

// Closes returns how many times the device has been released.
func (m *MockCapture) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Started reports whether the device is delivering frames.
func (m *MockCapture) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Emit delivers one frame, as hardware would. Frames emitted while
// stopped are discarded.
func (m *MockCapture) Emit(pcm []byte) {
	m.mu.Lock()
	fn := m.onData
	started := m.started
	m.mu.Unlock()
	if started && fn != nil {
		fn(pcm)
	}
}

// EmitTone delivers samples of a sine tone at freq Hz.
func (m *MockCapture) EmitTone(freq float64, samples, sampleRate int) {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)) * 16000)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	m.Emit(pcm)
}

// MockPlayback is a hardware-free playback device for tests. It
// pulls from the source only when Pump is called, which makes
// playback progress deterministic.
type MockPlayback struct {
	mu     sync.Mutex
	src    io.Reader
	resets int
	closed bool
}

// NewMockPlayback creates a mock playback device.
func NewMockPlayback() *MockPlayback {
	return &MockPlayback{}
}

// Name returns the backend name.
func (m *MockPlayback) Name() string { return "mock" }

// Start registers the audio source. Nothing is pulled until Pump.
func (m *MockPlayback) Start(src io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.src = src
	return nil
}

// Reset counts device-buffer flushes.
func (m *MockPlayback) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return nil
}

// Resets returns the number of Reset calls.
func (m *MockPlayback) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Close releases the fake device.
func (m *MockPlayback) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Pump pulls n bytes from the source, simulating the hardware clock,
// and returns what was read.
func (m *MockPlayback) Pump(n int) []byte {
	m.mu.Lock()
	src := m.src
	m.mu.Unlock()
	if src == nil {
		return nil
	}
	buf := make([]byte, n)
	read, _ := src.Read(buf)
	return buf[:read]
}
