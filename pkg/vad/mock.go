package vad

import "sync"

// MockModel is a mock implementation of Model for testing.
// It allows customizing the behavior of Infer through the InferFunc field.
type MockModel struct {
	// InferFunc is called when Infer is invoked.
	// If nil, returns 0.0 (no speech detected) and the unchanged state.
	InferFunc func(samples []float32, sampleRate int, state State) (float32, State, error)

	// InferCalls records all calls to Infer for verification.
	InferCalls []MockInferCall

	// DestroyCalled tracks if Destroy was called.
	DestroyCalled bool

	mu sync.Mutex
}

// MockInferCall records one Infer invocation.
type MockInferCall struct {
	Samples    []float32
	SampleRate int
	State      State
}

// NewMockModel creates a new MockModel with default behavior.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// NewMockModelWithProb creates a MockModel that returns a fixed probability
// and leaves the state untouched.
func NewMockModelWithProb(prob float32) *MockModel {
	return &MockModel{
		InferFunc: func(samples []float32, sampleRate int, state State) (float32, State, error) {
			return prob, state, nil
		},
	}
}

// NewRecurrentMockModel creates a deterministic stateful stand-in for the
// real network: the state accumulates the window energy, and the probability
// depends on both the window and the incoming state. Identical state
// trajectories produce identical outputs.
func NewRecurrentMockModel() *MockModel {
	return &MockModel{
		InferFunc: func(samples []float32, sampleRate int, state State) (float32, State, error) {
			var energy float32
			for _, s := range samples {
				energy += s * s
			}
			if len(samples) > 0 {
				energy /= float32(len(samples))
			}

			next := state
			for i := range next.H {
				next.H[i] = 0.5*state.H[i] + energy
				next.C[i] = state.C[i] + 1
			}

			prob := energy*10 + next.H[0]
			if prob > 1 {
				prob = 1
			}
			return prob, next, nil
		},
	}
}

// Infer implements Model.
func (m *MockModel) Infer(samples []float32, sampleRate int, state State) (float32, State, error) {
	m.mu.Lock()
	// Make a copy to avoid issues with reused slices
	samplesCopy := make([]float32, len(samples))
	copy(samplesCopy, samples)
	m.InferCalls = append(m.InferCalls, MockInferCall{Samples: samplesCopy, SampleRate: sampleRate, State: state})
	fn := m.InferFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(samples, sampleRate, state)
	}
	return 0.0, state, nil
}

// Destroy implements Model.
func (m *MockModel) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DestroyCalled = true
	return nil
}

// GetInferCallCount returns the number of times Infer was called.
func (m *MockModel) GetInferCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InferCalls)
}

// Ensure MockModel implements Model at compile time.
var _ Model = (*MockModel)(nil)
