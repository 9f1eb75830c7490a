package audio

import (
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoPlayback is the oto-backed speaker device.
type OtoPlayback struct {
	sampleRate int

	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
	closed bool
}

// NewOtoPlayback creates a playback backend for PCM16 mono at the
// given sample rate. No hardware is touched until Start.
func NewOtoPlayback(sampleRate int) *OtoPlayback {
	return &OtoPlayback{sampleRate: sampleRate}
}

// Name returns the backend name.
func (o *OtoPlayback) Name() string { return "oto" }

// Start acquires the speaker and begins pulling audio from src.
func (o *OtoPlayback) Start(src io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.player != nil {
		return nil
	}

	if o.ctx == nil {
		// A small device buffer keeps interruption latency low.
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   o.sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			return err
		}
		<-ready
		o.ctx = ctx
	}

	o.player = o.ctx.NewPlayer(src)
	o.player.Play()
	return nil
}

// Reset drops audio buffered inside the device and resumes playback
// from whatever the source delivers next.
func (o *OtoPlayback) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return nil
	}
	o.player.Pause()
	o.player.Reset()
	o.player.Play()
	return nil
}

// Close stops playback and releases the speaker.
func (o *OtoPlayback) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true

	if o.player != nil {
		err := o.player.Close()
		o.player = nil
		return err
	}
	return nil
}
