package audio

import (
	"encoding/binary"
	"math"
)

const (
	// SampleRate is the only sample rate the keyword spotter works with.
	SampleRate = 16000
	// Channels is the capture channel count (mono).
	Channels = 1
	// BytesPerSample for signed 16-bit PCM.
	BytesPerSample = 2
	// WindowSeconds is the analysis window duration.
	WindowSeconds = 1
	// WindowSize is the analysis window length in samples.
	WindowSize = SampleRate * WindowSeconds
)

// int16Scale matches the fixed-point maximum magnitude used for normalization.
const int16Scale = float32(math.MaxInt16)

// Int16ToFloat32 normalizes fixed-point samples into dst and returns it.
// dst is grown when it is too small.
func Int16ToFloat32(dst []float32, src []int16) []float32 {
	if cap(dst) < len(src) {
		dst = make([]float32, len(src))
	}
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = float32(s) / int16Scale
	}
	return dst
}

// Float32ToInt16 converts normalized samples back to fixed point, clamping
// values outside [-1, 1].
func Float32ToInt16(src []float32) []int16 {
	out := make([]int16, len(src))
	for i, s := range src {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		out[i] = int16(s * int16Scale)
	}
	return out
}

// BytesToInt16 converts little-endian 16-bit PCM to samples. A trailing odd
// byte is ignored.
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/BytesPerSample)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples
}

// RMS returns the root-mean-square amplitude of the window.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
