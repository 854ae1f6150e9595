package vad

// StateDims is the shape of each recurrent tensor: [2, 1, 64].
var StateDims = [3]int64{2, 1, 64}

// StateLen is the number of elements in one recurrent tensor.
const StateLen = 2 * 1 * 64

// State is the recurrent hidden state of the voice-activity model, the LSTM
// (h, c) pair. The zero value is the initial state of a new stream.
type State struct {
	H [StateLen]float32
	C [StateLen]float32
}

// IsZero reports whether s is the initial state.
func (s State) IsZero() bool {
	return s == State{}
}

// Model defines the voice-activity model collaborator. It is stateless: the
// caller owns the recurrent state and threads it from one call to the next.
// This interface allows for mock implementations in testing.
type Model interface {
	// Infer runs the model on samples (normalized float32 in [-1, 1]) at the
	// given sample rate, starting from state. It returns the speech
	// probability in [0, 1] and the updated state.
	Infer(samples []float32, sampleRate int, state State) (float32, State, error)

	// Destroy releases all resources held by the model.
	// The model should not be used after calling Destroy.
	Destroy() error
}
