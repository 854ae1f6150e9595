// Package gate decides whether an analysis window is worth classifying.
//
// Two strategies are available behind the Gate interface: EnergyGate, a
// loudness threshold, and VoiceActivityGate, a neural voice-activity model
// with recurrent state. The strategy is selected once per session; callers
// never inspect the concrete type.
package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/realtime-ai/keyword-spotter/pkg/audio"
	"github.com/realtime-ai/keyword-spotter/pkg/vad"
	"github.com/sirupsen/logrus"
)

// Decision is the result of evaluating one window.
type Decision int

const (
	// SpeechAbsent means the window is skipped.
	SpeechAbsent Decision = iota
	// SpeechPresent means features and inference should run.
	SpeechPresent
)

func (d Decision) String() string {
	switch d {
	case SpeechPresent:
		return "speech-present"
	case SpeechAbsent:
		return "speech-absent"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Gate evaluates analysis windows.
type Gate interface {
	// Evaluate returns the decision for one window. An error means the
	// window could not be evaluated and should be dropped.
	Evaluate(ctx context.Context, window audio.Window) (Decision, error)

	// Reset clears any state carried across windows.
	Reset()

	// Name identifies the strategy in logs and traces.
	Name() string
}

// Strategy selects a gate implementation.
type Strategy string

const (
	StrategyEnergy        Strategy = "energy"
	StrategyVoiceActivity Strategy = "voice-activity"
)

// ParseStrategy accepts the canonical names plus the short aliases "dB",
// "vad" and "Silero".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "energy", "db":
		return StrategyEnergy, nil
	case "voice-activity", "vad", "silero":
		return StrategyVoiceActivity, nil
	}
	return "", fmt.Errorf("unknown gate strategy %q", s)
}

// IsValid reports whether s is a recognised strategy.
func (s Strategy) IsValid() bool {
	return s == StrategyEnergy || s == StrategyVoiceActivity
}

// Options carries the settings for New.
type Options struct {
	// ThresholdDB is the EnergyGate threshold.
	ThresholdDB float64
	// OffsetDB is the EnergyGate calibration offset. Nil means DefaultOffsetDB.
	OffsetDB *float64
	// Model is required for StrategyVoiceActivity.
	Model vad.Model
	// SampleRate passed to the voice-activity model.
	SampleRate int
	// SpeechThreshold is the voice-activity probability threshold. Zero means
	// DefaultSpeechThreshold.
	SpeechThreshold float32
	Logger          logrus.FieldLogger
}

// New builds the gate for strategy.
func New(strategy Strategy, opts Options) (Gate, error) {
	switch strategy {
	case StrategyEnergy:
		offset := DefaultOffsetDB
		if opts.OffsetDB != nil {
			offset = *opts.OffsetDB
		}
		return NewEnergyGate(EnergyConfig{
			ThresholdDB: opts.ThresholdDB,
			OffsetDB:    offset,
			Logger:      opts.Logger,
		}), nil
	case StrategyVoiceActivity:
		return NewVoiceActivityGate(VoiceActivityConfig{
			Model:      opts.Model,
			SampleRate: opts.SampleRate,
			Threshold:  opts.SpeechThreshold,
			Logger:     opts.Logger,
		})
	}
	return nil, fmt.Errorf("unknown gate strategy %q", strategy)
}
