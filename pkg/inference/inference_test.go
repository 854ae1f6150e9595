package inference

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/realtime-ai/keyword-spotter/pkg/features"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{name: "ordered", input: "yes\nno\nup\n", want: []string{"yes", "no", "up"}},
		{name: "blank lines and spaces", input: "\n yes \n\r\nno\n\n", want: []string{"yes", "no"}},
		{name: "no trailing newline", input: "left\nright", want: []string{"left", "right"}},
		{name: "duplicate", input: "yes\nno\nyes\n", wantErr: true},
		{name: "empty", input: "\n\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLabels(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("on\noff\n"), 0o644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"on", "off"}, labels)

	_, err = LoadLabels(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, ErrModelLoad)

	bad := filepath.Join(dir, "dup.txt")
	require.NoError(t, os.WriteFile(bad, []byte("on\non\n"), 0o644))
	_, err = LoadLabels(bad)
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestNewAdapterVocabularyMismatch(t *testing.T) {
	model := NewMockModel(4, 0.1, 0.2, 0.7)

	_, err := NewAdapter(model, []string{"yes", "no"})
	assert.ErrorIs(t, err, ErrVocabularyMismatch)

	_, err = NewAdapter(nil, []string{"yes"})
	assert.ErrorIs(t, err, ErrModelLoad)

	a, err := NewAdapter(model, []string{"yes", "no", "up"})
	require.NoError(t, err)
	assert.Equal(t, 4, a.InputSize())
}

func TestClassifyMapsByPosition(t *testing.T) {
	model := NewMockModel(3, 0.05, 0.85, 0.10)
	a, err := NewAdapter(model, []string{"yes", "no", "up"})
	require.NoError(t, err)

	got, err := a.Classify(features.Vector{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, Classification{
		{Label: "yes", Confidence: 0.05},
		{Label: "no", Confidence: 0.85},
		{Label: "up", Confidence: 0.10},
	}, got)
	assert.Equal(t, 1, model.RunCalls())
}

func TestClassifyIsDeterministic(t *testing.T) {
	model := &MockModel{
		In:  2,
		Out: 2,
		RunFunc: func(input []float32) ([]float32, error) {
			return []float32{input[0] * 0.5, input[1] * 0.25}, nil
		},
	}
	a, err := NewAdapter(model, []string{"a", "b"})
	require.NoError(t, err)

	first, err := a.Classify(features.Vector{0.4, 0.8})
	require.NoError(t, err)
	second, err := a.Classify(features.Vector{0.4, 0.8})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestClassifyErrors(t *testing.T) {
	model := NewMockModel(3, 0.5, 0.5)
	a, err := NewAdapter(model, []string{"a", "b"})
	require.NoError(t, err)

	_, err = a.Classify(features.Vector{1})
	assert.ErrorIs(t, err, ErrInputSize)
	assert.Equal(t, 0, model.RunCalls())

	boom := errors.New("runtime exploded")
	model.RunFunc = func([]float32) ([]float32, error) { return nil, boom }
	_, err = a.Classify(features.Vector{1, 2, 3})
	assert.ErrorIs(t, err, boom)

	model.RunFunc = func([]float32) ([]float32, error) { return []float32{1}, nil }
	_, err = a.Classify(features.Vector{1, 2, 3})
	assert.ErrorIs(t, err, ErrVocabularyMismatch)
}

func TestAdapterLabelsAreCopies(t *testing.T) {
	labels := []string{"a", "b"}
	a, err := NewAdapter(NewMockModel(1, 0, 0), labels)
	require.NoError(t, err)

	labels[0] = "mutated"
	got := a.Labels()
	assert.Equal(t, []string{"a", "b"}, got)

	got[1] = "mutated"
	assert.Equal(t, []string{"a", "b"}, a.Labels())
}

func TestAdapterClose(t *testing.T) {
	model := NewMockModel(1, 0)
	a, err := NewAdapter(model, []string{"a"})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.Equal(t, 1, model.DestroyCalls())
}

func TestNewONNXModelMissingFile(t *testing.T) {
	_, err := NewONNXModel(ONNXConfig{ModelPath: filepath.Join(t.TempDir(), "missing.onnx")})
	assert.ErrorIs(t, err, ErrModelLoad)

	_, err = NewONNXModel(ONNXConfig{})
	assert.ErrorIs(t, err, ErrModelLoad)
}
