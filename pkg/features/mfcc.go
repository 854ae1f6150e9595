package features

import (
	"fmt"
	"math"

	"github.com/realtime-ai/keyword-spotter/pkg/audio"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultNumMFCC   = 13
	DefaultNFFT      = 2048
	DefaultHopLength = 512
	DefaultNumMels   = 128
	DefaultTopDB     = 80.0

	amin = 1e-10
)

// MFCCConfig configures an MFCC extractor. Zero fields take the defaults.
type MFCCConfig struct {
	SampleRate int
	NumMFCC    int
	NFFT       int
	HopLength  int
	NumMels    int
	TopDB      float64
}

// MFCC computes mel-frequency cepstral coefficients.
//
// Frames are centred with reflect padding, weighted with a periodic Hann
// window and transformed to a power spectrum. The spectrum is projected on a
// Slaney-normalised mel filterbank, converted to decibels with a TopDB
// dynamic-range floor and decorrelated with an orthonormal DCT-II.
//
// The filterbank, window and DCT basis are precomputed; Extract only reads
// them, so one MFCC may be shared between goroutines as long as each call
// gets its own FFT plan (which Extract allocates).
type MFCC struct {
	cfg    MFCCConfig
	window []float64
	melFB  [][]float64 // [mel][bin]
	dct    [][]float64 // [coef][mel]
}

var _ Extractor = (*MFCC)(nil)

// NewMFCC validates cfg and precomputes the static tables.
func NewMFCC(cfg MFCCConfig) (*MFCC, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.SampleRate
	}
	if cfg.NumMFCC == 0 {
		cfg.NumMFCC = DefaultNumMFCC
	}
	if cfg.NFFT == 0 {
		cfg.NFFT = DefaultNFFT
	}
	if cfg.HopLength == 0 {
		cfg.HopLength = DefaultHopLength
	}
	if cfg.NumMels == 0 {
		cfg.NumMels = DefaultNumMels
	}
	if cfg.TopDB == 0 {
		cfg.TopDB = DefaultTopDB
	}

	switch {
	case cfg.SampleRate < 0:
		return nil, fmt.Errorf("features: invalid sample rate %d", cfg.SampleRate)
	case cfg.NFFT < 2:
		return nil, fmt.Errorf("features: invalid n_fft %d", cfg.NFFT)
	case cfg.HopLength < 1:
		return nil, fmt.Errorf("features: invalid hop length %d", cfg.HopLength)
	case cfg.NumMels < 1:
		return nil, fmt.Errorf("features: invalid mel band count %d", cfg.NumMels)
	case cfg.NumMFCC < 1 || cfg.NumMFCC > cfg.NumMels:
		return nil, fmt.Errorf("features: coefficient count %d must be in [1, %d]", cfg.NumMFCC, cfg.NumMels)
	}

	return &MFCC{
		cfg:    cfg,
		window: hann(cfg.NFFT),
		melFB:  slaneyFilterbank(cfg.SampleRate, cfg.NFFT, cfg.NumMels),
		dct:    orthoDCT(cfg.NumMFCC, cfg.NumMels),
	}, nil
}

// Config returns the effective configuration.
func (m *MFCC) Config() MFCCConfig { return m.cfg }

// Frames returns the number of analysis frames for windowLen samples.
func (m *MFCC) Frames(windowLen int) int {
	if windowLen <= 0 {
		return 0
	}
	return 1 + windowLen/m.cfg.HopLength
}

// Size implements Extractor.
func (m *MFCC) Size(windowLen int) int {
	return m.cfg.NumMFCC * m.Frames(windowLen)
}

// Extract implements Extractor. The result is laid out as
// out[coef*frames+frame].
func (m *MFCC) Extract(window audio.Window) (Vector, error) {
	if len(window) == 0 {
		return nil, ErrEmptyWindow
	}

	nfft := m.cfg.NFFT
	pad := nfft / 2
	frames := m.Frames(len(window))
	bins := nfft/2 + 1

	padded := reflectPad(window, pad)

	fft := fourier.NewFFT(nfft)
	frame := make([]float64, nfft)
	coeffs := make([]complex128, bins)
	power := make([]float64, bins)

	// melDB[frame][mel]
	melDB := make([][]float64, frames)
	maxDB := math.Inf(-1)

	for t := 0; t < frames; t++ {
		off := t * m.cfg.HopLength
		for i := 0; i < nfft; i++ {
			frame[i] = padded[off+i] * m.window[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			re, im := real(c), imag(c)
			power[k] = re*re + im*im
		}

		row := make([]float64, m.cfg.NumMels)
		for b, filter := range m.melFB {
			var e float64
			for k, w := range filter {
				if w != 0 {
					e += w * power[k]
				}
			}
			db := 10 * math.Log10(math.Max(amin, e))
			row[b] = db
			if db > maxDB {
				maxDB = db
			}
		}
		melDB[t] = row
	}

	floor := maxDB - m.cfg.TopDB
	for _, row := range melDB {
		for b, v := range row {
			if v < floor {
				row[b] = floor
			}
		}
	}

	out := make(Vector, m.cfg.NumMFCC*frames)
	for c, basis := range m.dct {
		for t, row := range melDB {
			var s float64
			for b, v := range row {
				s += basis[b] * v
			}
			if math.IsNaN(s) || math.IsInf(s, 0) {
				return nil, ErrNonFinite
			}
			out[c*frames+t] = float32(s)
		}
	}
	return out, nil
}

// reflectPad mirrors pad samples on both sides without repeating the edge
// sample, the way numpy's "reflect" mode does.
func reflectPad(x audio.Window, pad int) []float64 {
	n := len(x)
	out := make([]float64, n+2*pad)
	for i := range out {
		out[i] = float64(x[reflectIndex(i-pad, n)])
	}
	return out
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// hann returns a periodic Hann window.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSP       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSP
)

var melLogStep = math.Log(6.4) / 27

func hzToMel(f float64) float64 {
	if f < melMinLogHz {
		return f / melFSP
	}
	return melMinLogMel + math.Log(f/melMinLogHz)/melLogStep
}

func melToHz(m float64) float64 {
	if m < melMinLogMel {
		return m * melFSP
	}
	return melMinLogHz * math.Exp(melLogStep*(m-melMinLogMel))
}

// slaneyFilterbank builds triangular filters from 0 Hz to Nyquist with
// area normalisation (2 / bandwidth).
func slaneyFilterbank(sampleRate, nfft, nMels int) [][]float64 {
	bins := nfft/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}

	minMel := hzToMel(0)
	maxMel := hzToMel(float64(sampleRate) / 2)
	melF := make([]float64, nMels+2)
	for i := range melF {
		melF[i] = melToHz(minMel + (maxMel-minMel)*float64(i)/float64(nMels+1))
	}

	fb := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		lower, centre, upper := melF[m], melF[m+1], melF[m+2]
		enorm := 2 / (upper - lower)
		row := make([]float64, bins)
		for k, f := range fftFreqs {
			lo := (f - lower) / (centre - lower)
			hi := (upper - f) / (upper - centre)
			w := math.Max(0, math.Min(lo, hi))
			row[k] = w * enorm
		}
		fb[m] = row
	}
	return fb
}

// orthoDCT returns the first nCoef rows of the orthonormal DCT-II matrix
// of size n.
func orthoDCT(nCoef, n int) [][]float64 {
	basis := make([][]float64, nCoef)
	for k := 0; k < nCoef; k++ {
		scale := math.Sqrt(2 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1 / float64(n))
		}
		row := make([]float64, n)
		for i := 0; i < n; i++ {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		basis[k] = row
	}
	return basis
}
