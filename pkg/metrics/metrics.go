// Package metrics records capture-session instruments through the
// OpenTelemetry metrics API. Provider wires a Prometheus exporter so the
// instruments can be scraped from /metrics.
//
// Tests should build Metrics with NewMetrics and an sdkmetric.ManualReader
// rather than relying on the global provider.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/realtime-ai/keyword-spotter"

// Stage names used with StageDuration.
const (
	StageGate     = "gate"
	StageFeatures = "features"
	StageInfer    = "inference"
	StagePublish  = "publish"
)

// Metrics holds the session instruments. All fields are safe for concurrent use.
type Metrics struct {
	// WindowsProcessed counts windows handed to the gate. Attribute: strategy.
	WindowsProcessed metric.Int64Counter
	// GateRejections counts windows the gate classified as no speech.
	GateRejections metric.Int64Counter
	// Detections counts non-sentinel results. Attribute: word.
	Detections metric.Int64Counter
	// DroppedWindows counts windows lost to processing errors. Attribute: stage.
	DroppedWindows metric.Int64Counter
	// ReadRetries counts transient capture errors.
	ReadRetries metric.Int64Counter
	// StageDuration tracks per-stage latency. Attribute: stage.
	StageDuration metric.Float64Histogram
	// ActiveSessions tracks running sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// Stage latencies are well below one window length.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.WindowsProcessed, err = m.Int64Counter("kwspot.windows.processed",
		metric.WithDescription("Analysis windows evaluated by the gate."),
	); err != nil {
		return nil, err
	}
	if met.GateRejections, err = m.Int64Counter("kwspot.gate.rejections",
		metric.WithDescription("Windows the gate classified as no speech."),
	); err != nil {
		return nil, err
	}
	if met.Detections, err = m.Int64Counter("kwspot.detections",
		metric.WithDescription("Results whose best confidence exceeded the floor."),
	); err != nil {
		return nil, err
	}
	if met.DroppedWindows, err = m.Int64Counter("kwspot.windows.dropped",
		metric.WithDescription("Windows dropped because a processing stage failed."),
	); err != nil {
		return nil, err
	}
	if met.ReadRetries, err = m.Int64Counter("kwspot.capture.retries",
		metric.WithDescription("Transient capture read errors that were retried."),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("kwspot.stage.duration",
		metric.WithDescription("Latency of one processing stage for one window."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("kwspot.sessions.active",
		metric.WithDescription("Capture sessions currently running."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Nop returns instruments backed by a no-op provider.
func Nop() *Metrics {
	m, _ := NewMetrics(noopProvider())
	return m
}

func (m *Metrics) RecordWindow(ctx context.Context, strategy string) {
	m.WindowsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

func (m *Metrics) RecordRejection(ctx context.Context, strategy string) {
	m.GateRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

func (m *Metrics) RecordDetection(ctx context.Context, word string) {
	m.Detections.Add(ctx, 1, metric.WithAttributes(attribute.String("word", word)))
}

func (m *Metrics) RecordDropped(ctx context.Context, stage string) {
	m.DroppedWindows.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *Metrics) RecordRetry(ctx context.Context) {
	m.ReadRetries.Add(ctx, 1)
}

// RecordStage records seconds spent in stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("stage", stage)))
}
