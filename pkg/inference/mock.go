package inference

import "sync"

// MockModel is a scriptable Model for tests.
type MockModel struct {
	In  int
	Out int

	// RunFunc is called by Run. If nil, Run returns Scores (or zeros).
	RunFunc func(input []float32) ([]float32, error)
	// Scores is returned by Run when RunFunc is nil.
	Scores []float32

	mu           sync.Mutex
	runCalls     int
	destroyCalls int
}

// NewMockModel returns a model that always produces scores.
func NewMockModel(inputSize int, scores ...float32) *MockModel {
	return &MockModel{In: inputSize, Out: len(scores), Scores: scores}
}

// Run implements Model.
func (m *MockModel) Run(input []float32) ([]float32, error) {
	m.mu.Lock()
	m.runCalls++
	fn := m.RunFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(input)
	}
	out := make([]float32, m.Out)
	copy(out, m.Scores)
	return out, nil
}

// InputSize implements Model.
func (m *MockModel) InputSize() int { return m.In }

// OutputSize implements Model.
func (m *MockModel) OutputSize() int { return m.Out }

// Destroy implements Model.
func (m *MockModel) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyCalls++
	return nil
}

// RunCalls returns how many times Run was called.
func (m *MockModel) RunCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runCalls
}

// DestroyCalls returns how many times Destroy was called.
func (m *MockModel) DestroyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyCalls
}

var _ Model = (*MockModel)(nil)
