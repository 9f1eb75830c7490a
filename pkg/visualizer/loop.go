package visualizer

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFrameInterval approximates a 60Hz display.
const DefaultFrameInterval = 16 * time.Millisecond

// SpectrumFunc returns the current spectrum snapshot of an audio
// path. It is called once per tick; stale buffered data must not be
// replayed, only the present state drawn.
type SpectrumFunc func() []float64

// Loop drives both surfaces at display rate and publishes the drawn
// frames. It has an explicit start/stop handle owned by the view
// lifecycle: after Stop returns, no further draw happens.
type Loop struct {
	interval time.Duration
	client   *Surface
	server   *Surface

	clientSpectrum SpectrumFunc
	serverSpectrum SpectrumFunc
	publish        func(Frame)

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool

	draws atomic.Int64
}

// NewLoop wires the loop to its spectrum sources and frame consumer.
func NewLoop(client, server *Surface, clientSpectrum, serverSpectrum SpectrumFunc, publish func(Frame)) *Loop {
	return &Loop{
		interval:       DefaultFrameInterval,
		client:         client,
		server:         server,
		clientSpectrum: clientSpectrum,
		serverSpectrum: serverSpectrum,
		publish:        publish,
	}
}

// SetInterval overrides the tick rate. Only effective before Start.
func (l *Loop) SetInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running && d > 0 {
		l.interval = d
	}
}

// Start begins ticking. Starting a running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go l.run(l.stop, l.done)
}

// Stop halts the loop and waits for the tick goroutine to exit. Once
// Stop returns, the draw count no longer moves. Safe to call
// repeatedly.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	stop, done := l.stop, l.done
	l.mu.Unlock()

	close(stop)
	<-done
}

// DrawCount reports the total number of draw calls issued.
func (l *Loop) DrawCount() int64 {
	return l.draws.Load()
}

func (l *Loop) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) tick() {
	if l.clientSpectrum != nil {
		frame := l.client.Draw(l.clientSpectrum())
		l.draws.Add(1)
		if l.publish != nil {
			l.publish(frame)
		}
	}
	if l.serverSpectrum != nil {
		frame := l.server.Draw(l.serverSpectrum())
		l.draws.Add(1)
		if l.publish != nil {
			l.publish(frame)
		}
	}
}
