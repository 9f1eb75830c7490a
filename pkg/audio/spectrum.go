package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Band selects which slice of the spectrum an analysis returns.
type Band string

const (
	// BandFull covers the whole spectrum up to Nyquist.
	BandFull Band = "frequency"
	// BandVoice covers the human vocal range.
	BandVoice Band = "voice"
)

const (
	// SpectrumBins is the number of magnitude buckets returned.
	SpectrumBins = 128

	// analysisWindow is the number of samples the FFT runs over.
	analysisWindow = 2048

	voiceLowHz  = 80.0
	voiceHighHz = 1100.0
)

// ZeroSpectrum returns an all-zero spectrum. Components that are not
// actively producing audio report this rather than stale data.
func ZeroSpectrum() []float64 {
	return make([]float64, SpectrumBins)
}

// analyzer keeps a rolling sample window and computes normalized
// magnitude spectra from it. Safe for concurrent use.
type analyzer struct {
	mu         sync.Mutex
	window     []float64
	fft        *fourier.FFT
	sampleRate int
}

func newAnalyzer(sampleRate int) *analyzer {
	return &analyzer{
		window:     make([]float64, analysisWindow),
		fft:        fourier.NewFFT(analysisWindow),
		sampleRate: sampleRate,
	}
}

// push folds raw PCM16 bytes into the rolling window.
func (a *analyzer) push(pcm []byte) {
	samples := len(pcm) / 2
	if samples == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if samples >= analysisWindow {
		pcm = pcm[(samples-analysisWindow)*2:]
		samples = analysisWindow
	}
	copy(a.window, a.window[samples:])
	base := analysisWindow - samples
	for i := 0; i < samples; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		a.window[base+i] = float64(s) / 32768.0
	}
}

// reset zeroes the window.
func (a *analyzer) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.window {
		a.window[i] = 0
	}
}

// spectrum computes SpectrumBins normalized magnitudes over band.
func (a *analyzer) spectrum(band Band) []float64 {
	a.mu.Lock()
	seq := make([]float64, analysisWindow)
	copy(seq, a.window)
	a.mu.Unlock()

	coeffs := a.fft.Coefficients(nil, seq)
	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c) / float64(analysisWindow)
	}

	nyquist := float64(a.sampleRate) / 2
	hzPerCoeff := nyquist / float64(len(mags)-1)

	lo, hi := 0, len(mags)
	if band == BandVoice {
		lo = int(voiceLowHz / hzPerCoeff)
		hi = int(math.Ceil(voiceHighHz / hzPerCoeff))
		if hi > len(mags) {
			hi = len(mags)
		}
		if lo >= hi {
			lo, hi = 0, len(mags)
		}
	}

	out := make([]float64, SpectrumBins)
	span := hi - lo
	for bin := 0; bin < SpectrumBins; bin++ {
		start := lo + bin*span/SpectrumBins
		end := lo + (bin+1)*span/SpectrumBins
		if end <= start {
			end = start + 1
		}
		var sum float64
		for i := start; i < end && i < len(mags); i++ {
			sum += mags[i]
		}
		v := sum / float64(end-start) * 8
		if v > 1 {
			v = 1
		}
		out[bin] = v
	}
	return out
}
