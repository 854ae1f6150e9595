package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on session spans.
const (
	AttrSessionID = "session.id"
	AttrStrategy  = "gate.strategy"
	AttrWindow    = "window.index"

	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioSamples    = "audio.samples"

	AttrGateDecision = "gate.decision"
	AttrLevelDB      = "gate.level_db"

	AttrFeatureSize = "features.size"

	AttrTopLabel      = "result.label"
	AttrTopConfidence = "result.confidence"
	AttrSentinel      = "result.sentinel"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// SessionAttrs creates attributes for session information
func SessionAttrs(sessionID, strategy string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrStrategy, strategy),
	}
}

// WindowAttrs describes one analysis window.
func WindowAttrs(index int64, sampleRate, samples int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrWindow, index),
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioSamples, samples),
	}
}

// ResultAttrs describes the published result.
func ResultAttrs(label string, confidence float32, sentinel bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTopLabel, label),
		attribute.Float64(AttrTopConfidence, float64(confidence)),
		attribute.Bool(AttrSentinel, sentinel),
	}
}

// ErrorAttrs describes a failure in the named stage.
func ErrorAttrs(stage string, err error) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, stage),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}

// LevelAttr records the loudness measured by the energy gate.
func LevelAttr(db float64) attribute.KeyValue {
	return attribute.Float64(AttrLevelDB, db)
}

// FeatureSizeAttr records the length of an extracted feature vector.
func FeatureSizeAttr(n int) attribute.KeyValue {
	return attribute.Int(AttrFeatureSize, n)
}
