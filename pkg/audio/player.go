package audio

import (
	"log/slog"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// TrackOffset identifies where playback of a track was cut off.
type TrackOffset struct {
	// TrackID is the conversation item whose audio was playing.
	TrackID string

	// Offset is the number of samples of that track actually
	// played before the cut.
	Offset int
}

// playback bookkeeping: each enqueued chunk is recorded as a byte
// extent tagged with its track, consumed in FIFO order as the device
// pulls audio.
type extent struct {
	trackID string
	bytes   int
}

// StreamPlayer queues PCM16 output audio per track and feeds it to a
// playback device. Bursty arrivals are buffered, never dropped, and
// playback order within the queue is preserved. Interrupt reports
// the frame-accurate position of whatever was playing.
type StreamPlayer struct {
	device     PlaybackDevice
	sampleRate int
	logger     *slog.Logger

	rb *ringbuffer.RingBuffer

	mu        sync.Mutex
	connected bool
	closed    bool
	extents   []extent
	played    map[string]int
	current   string

	analyzer *analyzer
}

// PlayerOption configures a StreamPlayer.
type PlayerOption func(*StreamPlayer)

// WithPlayerSampleRate overrides the default sample rate.
func WithPlayerSampleRate(rate int) PlayerOption {
	return func(p *StreamPlayer) { p.sampleRate = rate }
}

// WithPlayerLogger sets the structured logger.
func WithPlayerLogger(logger *slog.Logger) PlayerOption {
	return func(p *StreamPlayer) { p.logger = logger }
}

// NewStreamPlayer creates a player around the given playback device.
func NewStreamPlayer(device PlaybackDevice, opts ...PlayerOption) *StreamPlayer {
	p := &StreamPlayer{
		device:     device,
		sampleRate: DefaultSampleRate,
		logger:     slog.Default(),
		played:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	// 30 seconds of queue headroom; writers block rather than drop
	// if a response ever outruns playback by that much.
	p.rb = ringbuffer.New(p.sampleRate * 2 * 30).SetBlocking(true)
	p.analyzer = newAnalyzer(p.sampleRate)
	return p
}

// Connect acquires the output device and starts the pull loop.
// Idempotent.
func (p *StreamPlayer) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.connected {
		return nil
	}
	if err := p.device.Start(p); err != nil {
		return newDeviceError("start", p.device.Name(), err)
	}
	p.connected = true
	p.logger.Debug("playback device started", "backend", p.device.Name())
	return nil
}

// Add16BitPCM enqueues one chunk of track audio. Chunks play in
// arrival order; a chunk arriving while audio is already queued
// waits its turn.
func (p *StreamPlayer) Add16BitPCM(pcm []byte, trackID string) error {
	if len(pcm) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.connected {
		p.mu.Unlock()
		return ErrNotConnected
	}
	if n := len(p.extents); n > 0 && p.extents[n-1].trackID == trackID {
		p.extents[n-1].bytes += len(pcm)
	} else {
		p.extents = append(p.extents, extent{trackID: trackID, bytes: len(pcm)})
	}
	p.mu.Unlock()

	_, err := p.rb.Write(pcm)
	return err
}

// Read implements io.Reader for the playback device. It never
// blocks: with nothing queued it returns silence so the device stays
// fed.
func (p *StreamPlayer) Read(buf []byte) (int, error) {
	n, _ := p.rb.TryRead(buf)
	if n > 0 {
		p.consume(n)
		p.analyzer.push(buf[:n])
		return n, nil
	}
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

// consume advances track accounting for n bytes pulled by the device.
func (p *StreamPlayer) consume(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rem := n
	for rem > 0 && len(p.extents) > 0 {
		e := &p.extents[0]
		take := rem
		if e.bytes < take {
			take = e.bytes
		}
		e.bytes -= take
		rem -= take
		p.current = e.trackID
		p.played[e.trackID] += take / 2
		if e.bytes == 0 {
			p.extents = p.extents[1:]
		}
	}
}

// Interrupt halts playback immediately and reports which track was
// playing and how many samples of it were heard. ok is false when
// nothing was playing; calling Interrupt then is harmless.
func (p *StreamPlayer) Interrupt() (TrackOffset, bool) {
	p.mu.Lock()
	pending := p.rb.Length() > 0 || len(p.extents) > 0
	track := p.current
	if track == "" && len(p.extents) > 0 {
		track = p.extents[0].trackID
	}
	offset := p.played[track]
	p.extents = nil
	p.played = make(map[string]int)
	p.current = ""
	connected := p.connected
	p.mu.Unlock()

	p.rb.Reset()
	p.analyzer.reset()
	if connected {
		if err := p.device.Reset(); err != nil {
			p.logger.Warn("device reset failed", "backend", p.device.Name(), "error", err)
		}
	}

	if !pending || track == "" {
		return TrackOffset{}, false
	}
	return TrackOffset{TrackID: track, Offset: offset}, true
}

// Frequencies returns the spectrum of the audio currently playing,
// or a zero spectrum when the player is idle or disconnected.
func (p *StreamPlayer) Frequencies(band Band) []float64 {
	p.mu.Lock()
	active := p.connected && (p.current != "" || len(p.extents) > 0)
	p.mu.Unlock()

	if !active {
		return ZeroSpectrum()
	}
	return p.analyzer.spectrum(band)
}

// Close releases the output device. Safe to call repeatedly.
func (p *StreamPlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	connected := p.connected
	p.connected = false
	p.mu.Unlock()

	p.rb.CloseWriter()
	if connected {
		return p.device.Close()
	}
	return nil
}
