package visualizer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurfaceSizesOnce(t *testing.T) {
	s := NewSurface(DirectionClient, ClientStyle())

	s.Resize(280, 80)
	s.Resize(1000, 500)

	w, h := s.Size()
	assert.Equal(t, 280, w)
	assert.Equal(t, 80, h)
}

func TestSurfaceDrawBars(t *testing.T) {
	style := Style{BarWidth: 10, BarGap: 4, MinHeight: 2, Color: "#0099ff"}
	s := NewSurface(DirectionClient, style)
	s.Resize(140, 100)

	values := make([]float64, 64)
	values[0] = 0.5

	frame := s.Draw(values)
	// 10 bars of width 10 with gap 4 fit into 140 pixels.
	require.Len(t, frame.Bars, 10)
	assert.Equal(t, "#0099ff", frame.Color)

	first := frame.Bars[0]
	assert.Equal(t, 50.0, first.Height)
	assert.Equal(t, 50.0, first.Y)

	// Silent bars sit on the floor, not at zero.
	assert.Equal(t, 2.0, frame.Bars[1].Height)
	assert.Equal(t, 14.0, frame.Bars[1].X)
}

func TestSurfaceDrawBeforeResizeIsEmpty(t *testing.T) {
	s := NewSurface(DirectionServer, ServerStyle())
	frame := s.Draw([]float64{1, 1, 1})
	assert.Empty(t, frame.Bars)
}

func TestSurfaceClear(t *testing.T) {
	s := NewSurface(DirectionServer, ServerStyle())
	s.Resize(100, 50)
	frame := s.Clear()
	assert.Empty(t, frame.Bars)
	assert.Equal(t, DirectionServer, frame.Direction)
	assert.Equal(t, 100, frame.Width)
}

func TestLoopDrawsCurrentSnapshot(t *testing.T) {
	client := NewSurface(DirectionClient, ClientStyle())
	server := NewSurface(DirectionServer, ServerStyle())
	client.Resize(140, 80)
	server.Resize(140, 80)

	var mu sync.Mutex
	frames := map[Direction]int{}

	loop := NewLoop(client, server,
		func() []float64 { return make([]float64, 32) },
		func() []float64 { return make([]float64, 32) },
		func(f Frame) {
			mu.Lock()
			frames[f.Direction]++
			mu.Unlock()
		})
	loop.SetInterval(time.Millisecond)

	loop.Start()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return frames[DirectionClient] > 2 && frames[DirectionServer] > 2
	}, time.Second, time.Millisecond)
	loop.Stop()
}

func TestLoopStopHaltsDrawing(t *testing.T) {
	client := NewSurface(DirectionClient, ClientStyle())
	server := NewSurface(DirectionServer, ServerStyle())
	client.Resize(140, 80)
	server.Resize(140, 80)

	loop := NewLoop(client, server,
		func() []float64 { return make([]float64, 32) },
		func() []float64 { return make([]float64, 32) },
		nil)
	loop.SetInterval(time.Millisecond)

	loop.Start()
	require.Eventually(t, func() bool { return loop.DrawCount() > 0 },
		time.Second, time.Millisecond)
	loop.Stop()

	count := loop.DrawCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, count, loop.DrawCount())

	// Stopping again is safe.
	loop.Stop()
}

func TestLoopStartIsIdempotent(t *testing.T) {
	client := NewSurface(DirectionClient, ClientStyle())
	server := NewSurface(DirectionServer, ServerStyle())

	loop := NewLoop(client, server, nil, nil, nil)
	loop.Start()
	loop.Start()
	loop.Stop()
}
