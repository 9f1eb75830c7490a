// Package visualizer renders audio frequency spectra into bar-chart
// frames for the console dashboard: one surface for microphone
// input, one for playback output, driven by a display-rate loop.
package visualizer

import "sync"

// Direction names which audio path a surface displays.
type Direction string

const (
	// DirectionClient is the microphone input surface.
	DirectionClient Direction = "client"
	// DirectionServer is the playback output surface.
	DirectionServer Direction = "server"
)

// Style controls how a surface draws its bars.
type Style struct {
	// BarWidth is the fixed width of each bar in pixels.
	BarWidth float64

	// BarGap is the spacing between bars in pixels.
	BarGap float64

	// MinHeight is the floor below which no bar shrinks, so a
	// silent surface still shows a baseline.
	MinHeight float64

	// Color is the bar fill color.
	Color string
}

// ClientStyle is the default microphone surface style.
func ClientStyle() Style {
	return Style{BarWidth: 10, BarGap: 4, MinHeight: 2, Color: "#0099ff"}
}

// ServerStyle is the default playback surface style.
func ServerStyle() Style {
	return Style{BarWidth: 10, BarGap: 4, MinHeight: 2, Color: "#009900"}
}

// Bar is one drawn rectangle.
type Bar struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// Frame is one rendered chart, ready for the dashboard socket.
type Frame struct {
	Direction Direction `json:"direction"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Color     string    `json:"color"`
	Bars      []Bar     `json:"bars"`
}

// Surface turns spectrum snapshots into frames. Its size is fixed by
// the first Resize call; later resize attempts are ignored, matching
// a layout box measured once when the view appears.
type Surface struct {
	direction Direction
	style     Style

	mu     sync.Mutex
	width  int
	height int
	sized  bool
}

// NewSurface creates an unsized surface.
func NewSurface(direction Direction, style Style) *Surface {
	return &Surface{direction: direction, style: style}
}

// Resize fixes the surface dimensions. Only the first call has any
// effect.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sized || width <= 0 || height <= 0 {
		return
	}
	s.width = width
	s.height = height
	s.sized = true
}

// Size returns the fixed dimensions, zero until Resize.
func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Clear produces an empty frame for the surface.
func (s *Surface) Clear() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Frame{
		Direction: s.direction,
		Width:     s.width,
		Height:    s.height,
		Color:     s.style.Color,
	}
}

// Draw renders a spectrum snapshot. Values are clamped to [0,1]; as
// many bars as fit the width are drawn, each at least MinHeight
// tall, rising from the bottom edge.
func (s *Surface) Draw(values []float64) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := Frame{
		Direction: s.direction,
		Width:     s.width,
		Height:    s.height,
		Color:     s.style.Color,
	}
	if !s.sized || len(values) == 0 {
		return frame
	}

	step := s.style.BarWidth + s.style.BarGap
	fit := int(float64(s.width) / step)
	if fit > len(values) {
		fit = len(values)
	}

	frame.Bars = make([]Bar, 0, fit)
	for i := 0; i < fit; i++ {
		// sample the spectrum evenly across the drawable bars
		v := values[i*len(values)/fit]
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		h := v * float64(s.height)
		if h < s.style.MinHeight {
			h = s.style.MinHeight
		}
		frame.Bars = append(frame.Bars, Bar{
			X:      float64(i) * step,
			Y:      float64(s.height) - h,
			Width:  s.style.BarWidth,
			Height: h,
		})
	}
	return frame
}
