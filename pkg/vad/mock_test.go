package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockModel(t *testing.T) {
	t.Run("default returns zero probability and same state", func(t *testing.T) {
		mock := NewMockModel()
		in := State{}
		in.H[3] = 1

		prob, out, err := mock.Infer([]float32{0.1, 0.2, 0.3}, 16000, in)
		require.NoError(t, err)
		assert.Equal(t, float32(0.0), prob)
		assert.Equal(t, in, out)
	})

	t.Run("records infer calls", func(t *testing.T) {
		mock := NewMockModel()

		mock.Infer([]float32{0.1, 0.2}, 16000, State{})
		mock.Infer([]float32{0.3, 0.4, 0.5}, 8000, State{})

		assert.Equal(t, 2, mock.GetInferCallCount())
		assert.Equal(t, []float32{0.1, 0.2}, mock.InferCalls[0].Samples)
		assert.Equal(t, []float32{0.3, 0.4, 0.5}, mock.InferCalls[1].Samples)
		assert.Equal(t, 8000, mock.InferCalls[1].SampleRate)
	})

	t.Run("destroy tracking", func(t *testing.T) {
		mock := NewMockModel()
		assert.False(t, mock.DestroyCalled)
		mock.Destroy()
		assert.True(t, mock.DestroyCalled)
	})
}

func TestMockModelWithProb(t *testing.T) {
	mock := NewMockModelWithProb(0.75)

	prob1, _, err := mock.Infer([]float32{0.1}, 16000, State{})
	require.NoError(t, err)
	assert.Equal(t, float32(0.75), prob1)

	prob2, _, err := mock.Infer([]float32{0.2}, 16000, State{})
	require.NoError(t, err)
	assert.Equal(t, float32(0.75), prob2)
}

func TestRecurrentMockModel(t *testing.T) {
	mock := NewRecurrentMockModel()
	window := []float32{0.01, -0.01, 0.01, -0.01}

	p1, s1, err := mock.Infer(window, 16000, State{})
	require.NoError(t, err)
	p2, s2, err := mock.Infer(window, 16000, s1)
	require.NoError(t, err)

	assert.NotEqual(t, s1, s2, "state must advance")
	assert.NotEqual(t, p1, p2, "output depends on the incoming state")

	again, sAgain, err := mock.Infer(window, 16000, State{})
	require.NoError(t, err)
	assert.Equal(t, p1, again)
	assert.Equal(t, s1, sAgain)
}

func TestStateIsZero(t *testing.T) {
	var s State
	assert.True(t, s.IsZero())
	s.C[StateLen-1] = 0.1
	assert.False(t, s.IsZero())
	assert.Equal(t, int64(StateLen), StateDims[0]*StateDims[1]*StateDims[2])
}

func TestMockModelImplementsInterface(t *testing.T) {
	var _ Model = (*MockModel)(nil)
}
