package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/realtime-ai/keyword-spotter/pkg/audio"
	"github.com/realtime-ai/keyword-spotter/pkg/gate"
	"github.com/realtime-ai/keyword-spotter/pkg/rank"
)

// ErrInvalidConfig is returned for configuration values the session cannot
// run with.
var ErrInvalidConfig = errors.New("session: invalid configuration")

// Config holds the per-session settings.
type Config struct {
	// SampleRate of the capture source in Hz.
	SampleRate int
	// WindowSize is the analysis window length in samples.
	WindowSize int
	// HopSize is how far consecutive windows advance, 0 < HopSize <= WindowSize.
	HopSize int
	// DBThreshold is the EnergyGate threshold.
	DBThreshold float64
	// ConfidenceFloor must be strictly exceeded by the best label.
	ConfidenceFloor float32
	// TopK is the maximum number of ranked entries reported.
	TopK int
	// Strategy selects the gate.
	Strategy gate.Strategy

	// ReadChunk is the number of samples requested per capture read.
	ReadChunk int
	// RetryBackoff is the pause after a transient read error.
	RetryBackoff time.Duration
	// MaxReadRetries bounds consecutive transient errors; 0 means unbounded.
	MaxReadRetries int
}

// DefaultConfig returns the defaults: 50 dB threshold, 0.002 floor, half a
// second hop, top three labels, energy gate.
func DefaultConfig() Config {
	return Config{
		SampleRate:      audio.SampleRate,
		WindowSize:      audio.WindowSize,
		HopSize:         audio.SampleRate / 2,
		DBThreshold:     gate.DefaultThresholdDB,
		ConfidenceFloor: rank.DefaultConfidenceFloor,
		TopK:            rank.DefaultTopK,
		Strategy:        gate.StrategyEnergy,
		ReadChunk:       audio.SampleRate / 10,
		RetryBackoff:    10 * time.Millisecond,
	}
}

// Validate checks c and returns an error wrapping ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.WindowSize <= 0:
		return fmt.Errorf("%w: window size %d", ErrInvalidConfig, c.WindowSize)
	case c.HopSize <= 0 || c.HopSize > c.WindowSize:
		return fmt.Errorf("%w: hop size %d must be in (0, %d]", ErrInvalidConfig, c.HopSize, c.WindowSize)
	case c.TopK < 1:
		return fmt.Errorf("%w: topK %d must be at least 1", ErrInvalidConfig, c.TopK)
	case c.ConfidenceFloor < 0 || c.ConfidenceFloor >= 1:
		return fmt.Errorf("%w: confidence floor %v must be in [0, 1)", ErrInvalidConfig, c.ConfidenceFloor)
	case !c.Strategy.IsValid():
		return fmt.Errorf("%w: gate strategy %q", ErrInvalidConfig, c.Strategy)
	case c.ReadChunk <= 0:
		return fmt.Errorf("%w: read chunk %d", ErrInvalidConfig, c.ReadChunk)
	case c.RetryBackoff < 0 || c.MaxReadRetries < 0:
		return fmt.Errorf("%w: negative retry setting", ErrInvalidConfig)
	}
	return nil
}
