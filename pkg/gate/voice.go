package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/realtime-ai/keyword-spotter/pkg/audio"
	"github.com/realtime-ai/keyword-spotter/pkg/vad"
	"github.com/sirupsen/logrus"
)

// DefaultSpeechThreshold is the probability above which a window counts as speech.
const DefaultSpeechThreshold = 0.5

// VoiceActivityConfig configures a VoiceActivityGate.
type VoiceActivityConfig struct {
	Model      vad.Model
	SampleRate int
	Threshold  float32
	Logger     logrus.FieldLogger
}

// VoiceActivityGate asks a voice-activity model whether a window contains
// speech. It owns the model's recurrent state and feeds the state returned by
// one call into the next, for the life of the session.
type VoiceActivityGate struct {
	model      vad.Model
	sampleRate int
	threshold  float32
	log        logrus.FieldLogger

	mu    sync.Mutex
	state vad.State
	last  float32
}

var _ Gate = (*VoiceActivityGate)(nil)

// NewVoiceActivityGate creates a gate starting from the zero state.
func NewVoiceActivityGate(cfg VoiceActivityConfig) (*VoiceActivityGate, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("voice-activity gate requires a model")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SampleRate
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultSpeechThreshold
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &VoiceActivityGate{
		model:      cfg.Model,
		sampleRate: cfg.SampleRate,
		threshold:  cfg.Threshold,
		log:        cfg.Logger,
	}, nil
}

// Evaluate implements Gate. On a model error the state is left unchanged.
func (g *VoiceActivityGate) Evaluate(ctx context.Context, window audio.Window) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	prob, next, err := g.model.Infer(window, g.sampleRate, g.state)
	if err != nil {
		return SpeechAbsent, fmt.Errorf("voice activity inference: %w", err)
	}
	g.state = next
	g.last = prob

	g.log.WithField("speech_prob", prob).Debugf("[VoiceActivityGate] Speech probability %.3f", prob)
	if prob > g.threshold {
		return SpeechPresent, nil
	}
	return SpeechAbsent, nil
}

// Reset implements Gate. The next window starts from the zero state.
func (g *VoiceActivityGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = vad.State{}
	g.last = 0
}

// Name implements Gate.
func (g *VoiceActivityGate) Name() string { return string(StrategyVoiceActivity) }

// State returns a copy of the current recurrent state.
func (g *VoiceActivityGate) State() vad.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// LastProbability returns the probability from the latest successful call.
func (g *VoiceActivityGate) LastProbability() float32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Destroy releases the underlying model.
func (g *VoiceActivityGate) Destroy() error {
	return g.model.Destroy()
}
