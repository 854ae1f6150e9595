package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span names for the per-window stages.
const (
	SpanWindow   = "session.window"
	SpanGate     = "gate.evaluate"
	SpanFeatures = "features.extract"
	SpanInfer    = "inference.classify"
	SpanPublish  = "rank.publish"
)

// StartWindow opens the root span of one analysis window.
func StartWindow(ctx context.Context, sessionID, strategy string, index int64, sampleRate, samples int) (context.Context, trace.Span) {
	attrs := append(SessionAttrs(sessionID, strategy), WindowAttrs(index, sampleRate, samples)...)
	return StartSpan(ctx, SpanWindow, trace.WithAttributes(attrs...))
}

// StartStage opens a child span for one stage of the current window.
func StartStage(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, stage, trace.WithAttributes(attrs...))
}

// EndStage records err, if any, and ends span.
func EndStage(span trace.Span, err error) {
	RecordError(span, err)
	span.End()
}
