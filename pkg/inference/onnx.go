package inference

import (
	"fmt"
	"os"
	"sync"

	"github.com/realtime-ai/keyword-spotter/pkg/vad"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig configures an ONNXModel.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	// Threads sets intra-op parallelism. Zero lets the runtime decide.
	Threads int
}

// ONNXModel runs a single-input, single-output float32 classifier. Tensors
// are allocated once at load time with the shapes the graph declares;
// dynamic dimensions are fixed to 1.
type ONNXModel struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	inputShape  ort.Shape
	outputShape ort.Shape
}

var _ Model = (*ONNXModel)(nil)

// NewONNXModel loads the classifier at cfg.ModelPath.
func NewONNXModel(cfg ONNXConfig) (*ONNXModel, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: empty model path", ErrModelLoad)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	if err := vad.InitRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read model io: %w", ErrModelLoad, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("%w: want 1 input and 1 output, model has %d and %d",
			ErrModelLoad, len(inputs), len(outputs))
	}

	inShape := concreteShape(inputs[0].Dimensions)
	outShape := concreteShape(outputs[0].Dimensions)
	if len(outShape) == 0 {
		return nil, fmt.Errorf("%w: scalar output", ErrModelLoad)
	}

	inTensor, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, fmt.Errorf("%w: input tensor: %w", ErrModelLoad, err)
	}
	outTensor, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		inTensor.Destroy()
		return nil, fmt.Errorf("%w: output tensor: %w", ErrModelLoad, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inTensor.Destroy()
		outTensor.Destroy()
		return nil, fmt.Errorf("%w: session options: %w", ErrModelLoad, err)
	}
	defer options.Destroy()
	if cfg.Threads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.Threads); err != nil {
			inTensor.Destroy()
			outTensor.Destroy()
			return nil, fmt.Errorf("%w: intra-op threads: %w", ErrModelLoad, err)
		}
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{inTensor}, []ort.Value{outTensor}, options)
	if err != nil {
		inTensor.Destroy()
		outTensor.Destroy()
		return nil, fmt.Errorf("%w: create session: %w", ErrModelLoad, err)
	}

	return &ONNXModel{
		session:     session,
		input:       inTensor,
		output:      outTensor,
		inputShape:  inShape,
		outputShape: outShape,
	}, nil
}

func concreteShape(dims ort.Shape) ort.Shape {
	s := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		s[i] = d
	}
	return s
}

// InputSize implements Model.
func (m *ONNXModel) InputSize() int { return int(m.inputShape.FlattenedSize()) }

// OutputSize implements Model.
func (m *ONNXModel) OutputSize() int { return int(m.outputShape[len(m.outputShape)-1]) }

// Run implements Model.
func (m *ONNXModel) Run(input []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, fmt.Errorf("model destroyed")
	}
	dst := m.input.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInputSize, len(input), len(dst))
	}
	copy(dst, input)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}

	// Only the last row is returned for batched outputs.
	data := m.output.GetData()
	n := m.OutputSize()
	out := make([]float32, n)
	copy(out, data[len(data)-n:])
	return out, nil
}

// Destroy implements Model. It is safe to call more than once.
func (m *ONNXModel) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.input.Destroy()
	m.output.Destroy()
	m.session = nil
	if err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}
