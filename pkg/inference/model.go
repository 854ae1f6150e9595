// Package inference runs the keyword classifier on feature vectors and maps
// its raw outputs onto the label vocabulary.
package inference

import "errors"

var (
	// ErrModelLoad is returned when the classifier or its labels cannot be
	// loaded. It is fatal for the session.
	ErrModelLoad = errors.New("inference: model load failed")

	// ErrVocabularyMismatch is returned when the label count differs from
	// the model's output width.
	ErrVocabularyMismatch = errors.New("inference: vocabulary does not match model output")

	// ErrInputSize is returned when a feature vector does not fit the input tensor.
	ErrInputSize = errors.New("inference: feature vector size does not match model input")
)

// Model is a loaded classifier runtime. Run must be deterministic for a
// fixed input.
type Model interface {
	// Run feeds input (exactly InputSize values) through the network and
	// returns OutputSize scores.
	Run(input []float32) ([]float32, error)

	// InputSize is the element count of the input tensor.
	InputSize() int

	// OutputSize is the last dimension of the output tensor.
	OutputSize() int

	// Destroy releases runtime resources.
	Destroy() error
}
