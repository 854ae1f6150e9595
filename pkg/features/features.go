// Package features turns analysis windows into the fixed-length feature
// vectors the keyword classifier consumes.
package features

import (
	"errors"

	"github.com/realtime-ai/keyword-spotter/pkg/audio"
)

// Vector is a flattened feature matrix, coefficient-major.
type Vector []float32

var (
	// ErrEmptyWindow is returned for a zero-length window.
	ErrEmptyWindow = errors.New("features: empty window")
	// ErrNonFinite is returned when the output contains NaN or Inf.
	ErrNonFinite = errors.New("features: non-finite value in output")
)

// Extractor computes a feature vector for one window. Implementations are
// pure: the same window always yields the same vector.
type Extractor interface {
	Extract(window audio.Window) (Vector, error)

	// Size reports the vector length produced for a window of windowLen samples.
	Size(windowLen int) int
}
