package gate

import (
	"context"
	"math"

	"github.com/realtime-ai/keyword-spotter/pkg/audio"
	"github.com/realtime-ai/keyword-spotter/pkg/trace"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultThresholdDB is the default loudness threshold.
	DefaultThresholdDB = 50.0

	// DefaultOffsetDB is the calibration offset added to 20·log10(rms). It is
	// tied to the 16-bit source format and kept as-is.
	DefaultOffsetDB = 85.0
)

// EnergyConfig configures an EnergyGate.
type EnergyConfig struct {
	ThresholdDB float64
	// OffsetDB is used as given, zero included.
	OffsetDB float64
	Logger      logrus.FieldLogger
}

// EnergyGate passes windows whose loudness exceeds a decibel threshold. It
// keeps no state between windows.
type EnergyGate struct {
	thresholdDB float64
	offsetDB    float64
	log         logrus.FieldLogger
}

var _ Gate = (*EnergyGate)(nil)

// NewEnergyGate creates an EnergyGate.
func NewEnergyGate(cfg EnergyConfig) *EnergyGate {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &EnergyGate{
		thresholdDB: cfg.ThresholdDB,
		offsetDB:    cfg.OffsetDB,
		log:         cfg.Logger,
	}
}

// Level returns the window loudness as 20·log10(rms) + offset. ok is false
// for digital silence, where the logarithm is undefined.
func (g *EnergyGate) Level(window audio.Window) (db float64, ok bool) {
	rms := audio.RMS(window)
	if rms == 0 {
		return 0, false
	}
	return 20*math.Log10(rms) + g.offsetDB, true
}

// Evaluate implements Gate. It never returns an error.
func (g *EnergyGate) Evaluate(ctx context.Context, window audio.Window) (Decision, error) {
	db, ok := g.Level(window)
	if !ok {
		g.log.Debug("[EnergyGate] Silent window")
		return SpeechAbsent, nil
	}

	trace.Annotate(ctx, trace.LevelAttr(db))
	g.log.WithField("level_db", db).Debugf("[EnergyGate] Sound level: %.1f dB", db)
	if db > g.thresholdDB {
		return SpeechPresent, nil
	}
	return SpeechAbsent, nil
}

// Reset implements Gate. EnergyGate is stateless.
func (g *EnergyGate) Reset() {}

// Name implements Gate.
func (g *EnergyGate) Name() string { return string(StrategyEnergy) }

// ThresholdDB returns the configured threshold.
func (g *EnergyGate) ThresholdDB() float64 { return g.thresholdDB }
