// Package rank orders classifier scores, applies the confidence floor and
// publishes the outcome.
package rank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/realtime-ai/keyword-spotter/pkg/inference"
)

const (
	// NoneLabel is the label of the sentinel result.
	NoneLabel = "none"

	DefaultTopK            = 3
	DefaultConfidenceFloor = float32(0.002)
)

// Result is a ranked, non-empty list of scores in descending confidence
// order, or the sentinel.
type Result []inference.Score

// Sentinel returns the ("none", 0.0) result emitted when nothing was detected.
func Sentinel() Result {
	return Result{{Label: NoneLabel, Confidence: 0}}
}

// IsSentinel reports whether r is the no-detection result.
func (r Result) IsSentinel() bool {
	return len(r) == 1 && r[0].Label == NoneLabel && r[0].Confidence == 0
}

// Best returns the highest-ranked entry.
func (r Result) Best() inference.Score {
	if len(r) == 0 {
		return Sentinel()[0]
	}
	return r[0]
}

func (r Result) String() string {
	parts := make([]string, len(r))
	for i, s := range r {
		parts[i] = fmt.Sprintf("%s:%.4f", s.Label, s.Confidence)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Rank sorts c by confidence (ties keep vocabulary order), keeps the first
// topK entries and returns the sentinel unless the best confidence is
// strictly above floor. A topK below 1 is treated as 1. c is not modified.
func Rank(c inference.Classification, topK int, floor float32) Result {
	if len(c) == 0 {
		return Sentinel()
	}
	if topK < 1 {
		topK = 1
	}

	sorted := make(Result, len(c))
	copy(sorted, c)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	if !(sorted[0].Confidence > floor) {
		return Sentinel()
	}
	if len(sorted) > topK {
		sorted = sorted[:topK]
	}
	return sorted
}
