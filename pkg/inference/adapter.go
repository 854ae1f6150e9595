package inference

import (
	"fmt"

	"github.com/realtime-ai/keyword-spotter/pkg/features"
)

// Score is one label's confidence.
type Score struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Classification holds one score per vocabulary entry, in vocabulary order.
type Classification []Score

// Adapter binds a model to its vocabulary.
type Adapter struct {
	model  Model
	labels []string
}

// NewAdapter checks that the vocabulary matches the model output width.
func NewAdapter(model Model, labels []string) (*Adapter, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrModelLoad)
	}
	if len(labels) != model.OutputSize() {
		return nil, fmt.Errorf("%w: %d labels, model outputs %d scores",
			ErrVocabularyMismatch, len(labels), model.OutputSize())
	}

	owned := make([]string, len(labels))
	copy(owned, labels)
	return &Adapter{model: model, labels: owned}, nil
}

// Labels returns the vocabulary.
func (a *Adapter) Labels() []string {
	out := make([]string, len(a.labels))
	copy(out, a.labels)
	return out
}

// InputSize is the feature length the model expects.
func (a *Adapter) InputSize() int { return a.model.InputSize() }

// Classify runs the model and pairs output i with label i.
func (a *Adapter) Classify(v features.Vector) (Classification, error) {
	if len(v) != a.model.InputSize() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(v), a.model.InputSize())
	}

	out, err := a.model.Run(v)
	if err != nil {
		return nil, fmt.Errorf("run classifier: %w", err)
	}
	if len(out) != len(a.labels) {
		return nil, fmt.Errorf("%w: model returned %d scores", ErrVocabularyMismatch, len(out))
	}

	result := make(Classification, len(out))
	for i, c := range out {
		result[i] = Score{Label: a.labels[i], Confidence: c}
	}
	return result, nil
}

// Close releases the model.
func (a *Adapter) Close() error {
	return a.model.Destroy()
}
