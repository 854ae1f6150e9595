package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	mu.Lock()
	install(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	mu.Unlock()
	t.Cleanup(func() { Shutdown(context.Background()) })
	return rec
}

func TestInitializeNoneIsNoop(t *testing.T) {
	require.NoError(t, Initialize(context.Background(), DefaultConfig(), nil))
	assert.Nil(t, tracerProvider)
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInitializeRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporter = "zipkin"
	assert.Error(t, Initialize(context.Background(), cfg, nil))
}

func TestWindowAndStageSpans(t *testing.T) {
	rec := withRecorder(t)

	ctx, window := StartWindow(context.Background(), "s1", "energy", 7, 16000, 16000)
	_, gate := StartStage(ctx, SpanGate)
	EndStage(gate, nil)
	_, infer := StartStage(ctx, SpanInfer)
	EndStage(infer, errors.New("bad tensor"))
	window.End()

	spans := rec.Ended()
	require.Len(t, spans, 3)

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}
	root := byName[SpanWindow]
	require.NotNil(t, root)
	assert.Equal(t, root.SpanContext().SpanID(), byName[SpanGate].Parent().SpanID())
	assert.Equal(t, root.SpanContext().SpanID(), byName[SpanInfer].Parent().SpanID())
	assert.Equal(t, codes.Error, byName[SpanInfer].Status().Code)
	assert.Equal(t, codes.Unset, byName[SpanGate].Status().Code)

	attrs := map[string]interface{}{}
	for _, kv := range root.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "s1", attrs[AttrSessionID])
	assert.Equal(t, int64(7), attrs[AttrWindow])
}

func TestLogFields(t *testing.T) {
	assert.Nil(t, LogFields(context.Background()))

	withRecorder(t)
	ctx, span := StartSpan(context.Background(), "x")
	defer span.End()

	fields := LogFields(ctx)
	require.NotNil(t, fields)
	assert.Equal(t, TraceID(ctx), fields["trace_id"])
	assert.Equal(t, SpanID(ctx), fields["span_id"])
}

func TestAnnotateAndErrorAttrs(t *testing.T) {
	rec := withRecorder(t)

	ctx, span := StartStage(context.Background(), SpanFeatures)
	Annotate(ctx, FeatureSizeAttr(416), LevelAttr(61.5))
	Annotate(ctx, ErrorAttrs("features", errors.New("empty window"))...)
	EndStage(span, nil)

	require.Len(t, rec.Ended(), 1)
	attrs := map[string]interface{}{}
	for _, kv := range rec.Ended()[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, int64(416), attrs[AttrFeatureSize])
	assert.Equal(t, 61.5, attrs[AttrLevelDB])
	assert.Equal(t, "features", attrs[AttrErrorType])
	assert.Equal(t, "empty window", attrs[AttrErrorMessage])
}

func TestIDsWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
	assert.Empty(t, SpanID(context.Background()))
}
