package capture

import (
	"context"
	"sync"
	"time"
)

// MockSource is a scripted Source for testing. Each Read consumes the next
// step: either samples or an error. When the script runs out, Read blocks
// until the context is cancelled, like an idle microphone.
type MockSource struct {
	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// Rate is returned by SampleRate. Defaults to 16000.
	Rate int

	// StartDelay makes Start block for the given duration, like a device
	// that is slow to open.
	StartDelay time.Duration

	mu          sync.Mutex
	steps       []MockStep
	readCalls   int
	startCalled bool
	closeCalls  int
}

// MockStep is one scripted Read result.
type MockStep struct {
	Samples []int16
	Err     error
}

var _ Source = (*MockSource)(nil)

// NewMockSource creates a MockSource that plays back the given steps.
func NewMockSource(steps ...MockStep) *MockSource {
	return &MockSource{steps: steps, Rate: 16000}
}

// Feed appends more steps to the script.
func (m *MockSource) Feed(steps ...MockStep) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
}

// Start implements Source.
func (m *MockSource) Start() error {
	if m.StartDelay > 0 {
		time.Sleep(m.StartDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalled = true
	return m.StartErr
}

// Read implements Source. Samples longer than dst are split across reads.
func (m *MockSource) Read(ctx context.Context, dst []int16) (int, error) {
	m.mu.Lock()
	m.readCalls++
	if len(m.steps) == 0 {
		m.mu.Unlock()
		<-ctx.Done()
		return 0, ctx.Err()
	}

	step := m.steps[0]
	if step.Err != nil {
		m.steps = m.steps[1:]
		m.mu.Unlock()
		return 0, step.Err
	}

	n := copy(dst, step.Samples)
	if n < len(step.Samples) {
		m.steps[0].Samples = step.Samples[n:]
	} else {
		m.steps = m.steps[1:]
	}
	m.mu.Unlock()
	return n, nil
}

// SampleRate implements Source.
func (m *MockSource) SampleRate() int {
	return m.Rate
}

// Close implements Source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// ReadCalls returns the number of Read invocations.
func (m *MockSource) ReadCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCalls
}

// CloseCalls returns the number of Close invocations.
func (m *MockSource) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// StartCalled reports whether Start was invoked.
func (m *MockSource) StartCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalled
}

// Pending returns the number of unconsumed steps.
func (m *MockSource) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}
