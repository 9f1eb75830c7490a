package audio

import (
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoCapture is the miniaudio-backed microphone device.
type MalgoCapture struct {
	sampleRate int
	channels   int

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	onData func(pcm []byte)
}

// NewMalgoCapture creates a capture backend for PCM16 mono at the
// given sample rate. No hardware is touched until Open.
func NewMalgoCapture(sampleRate int) *MalgoCapture {
	return &MalgoCapture{sampleRate: sampleRate, channels: 1}
}

// Name returns the backend name.
func (m *MalgoCapture) Name() string { return "malgo" }

// Open acquires the default capture device. A device released by
// Close can be opened again; the context is initialized per
// acquisition.
func (m *MalgoCapture) Open(onData func(pcm []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		m.onData = onData
		return nil
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.channels)
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	m.onData = onData
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.mu.Lock()
			fn := m.onData
			m.mu.Unlock()
			if fn != nil {
				// copy: malgo reuses the buffer
				frame := make([]byte, len(input))
				copy(frame, input)
				fn(frame)
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return err
	}

	m.ctx = ctx
	m.device = device
	return nil
}

// Start begins frame delivery.
func (m *MalgoCapture) Start() error {
	m.mu.Lock()
	device := m.device
	m.mu.Unlock()

	if device == nil {
		return ErrClosed
	}
	if device.IsStarted() {
		return nil
	}
	return device.Start()
}

// Stop halts frame delivery without releasing the device.
func (m *MalgoCapture) Stop() error {
	m.mu.Lock()
	device := m.device
	m.mu.Unlock()

	if device == nil || !device.IsStarted() {
		return nil
	}
	return device.Stop()
}

// Close releases the device and its audio context. Idempotent.
func (m *MalgoCapture) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.onData = nil

	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		err := m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
		return err
	}
	return nil
}
