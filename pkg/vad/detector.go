// Package vad provides Voice Activity Detection using the Silero VAD model.
//
// This package uses onnxruntime_go for ONNX model inference. The model graph
// takes the audio, the sample rate and the LSTM state tensors h and c, and
// returns the speech probability together with the next h and c.
//
// Usage:
//
//	// Initialize the ONNX runtime (call once at startup)
//	if err := vad.InitRuntime(""); err != nil {
//	    log.Fatal(err)
//	}
//	defer vad.DestroyRuntime()
//
//	model, err := vad.NewONNXModel(vad.ModelConfig{
//	    ModelPath: "path/to/silero_vad.onnx",
//	})
//	prob, next, err := model.Infer(samples, 16000, vad.State{})
package vad

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// runtimeInitialized tracks whether the ONNX runtime has been initialized.
var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime initializes the ONNX runtime environment.
// libraryPath can be empty to use auto-detection, or specify the path to libonnxruntime.so.
// This should be called once at application startup before creating any models.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	} else if libPath := findONNXRuntimeLibrary(); libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	runtimeInitialized = true
	return nil
}

// DestroyRuntime destroys the ONNX runtime environment.
// This should be called once at application shutdown.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("failed to destroy ONNX runtime: %w", err)
	}

	runtimeInitialized = false
	return nil
}

// findONNXRuntimeLibrary tries to find the ONNX Runtime shared library.
func findONNXRuntimeLibrary() string {
	paths := []string{
		os.Getenv("ONNXRUNTIME_LIB"),
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/onnxruntime/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}

	if ldPath := os.Getenv("LD_LIBRARY_PATH"); ldPath != "" {
		for _, dir := range filepath.SplitList(ldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.so"))
		}
	}
	if dyldPath := os.Getenv("DYLD_LIBRARY_PATH"); dyldPath != "" {
		for _, dir := range filepath.SplitList(dyldPath) {
			paths = append(paths, filepath.Join(dir, "libonnxruntime.dylib"))
		}
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// ModelConfig holds configuration for loading the VAD model.
type ModelConfig struct {
	// The path to the ONNX Silero VAD model file to load.
	ModelPath string
	// LibraryPath optionally points at libonnxruntime.
	LibraryPath string
}

// IsValid validates the model configuration.
func (c ModelConfig) IsValid() error {
	if c.ModelPath == "" {
		return fmt.Errorf("invalid ModelPath: should not be empty")
	}
	return nil
}

// ONNXModel runs a Silero VAD graph with explicit h/c state through
// onnxruntime. It holds no per-stream state of its own.
type ONNXModel struct {
	session *ort.DynamicAdvancedSession
	cfg     ModelConfig
}

var _ Model = (*ONNXModel)(nil)

// NewONNXModel loads the model. The ONNX runtime is initialized on demand.
func NewONNXModel(cfg ModelConfig) (*ONNXModel, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("vad model: %w", err)
	}

	if err := InitRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("ONNX runtime not initialized: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("failed to set inter-op threads: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input", "sr", "h", "c"},
		[]string{"output", "hn", "cn"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ONNXModel{session: session, cfg: cfg}, nil
}

// Infer implements Model.
func (m *ONNXModel) Infer(samples []float32, sampleRate int, state State) (float32, State, error) {
	if m == nil || m.session == nil {
		return 0, state, fmt.Errorf("invalid nil model")
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(samples))), samples)
	if err != nil {
		return 0, state, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(sampleRate)})
	if err != nil {
		return 0, state, fmt.Errorf("failed to create sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	stateShape := ort.NewShape(StateDims[0], StateDims[1], StateDims[2])
	hTensor, err := ort.NewTensor(stateShape, state.H[:])
	if err != nil {
		return 0, state, fmt.Errorf("failed to create h tensor: %w", err)
	}
	defer hTensor.Destroy()

	cTensor, err := ort.NewTensor(stateShape, state.C[:])
	if err != nil {
		return 0, state, fmt.Errorf("failed to create c tensor: %w", err)
	}
	defer cTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, state, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	hnTensor, err := ort.NewEmptyTensor[float32](stateShape)
	if err != nil {
		return 0, state, fmt.Errorf("failed to create hn tensor: %w", err)
	}
	defer hnTensor.Destroy()

	cnTensor, err := ort.NewEmptyTensor[float32](stateShape)
	if err != nil {
		return 0, state, fmt.Errorf("failed to create cn tensor: %w", err)
	}
	defer cnTensor.Destroy()

	inputs := []ort.Value{inputTensor, srTensor, hTensor, cTensor}
	outputs := []ort.Value{outputTensor, hnTensor, cnTensor}
	if err := m.session.Run(inputs, outputs); err != nil {
		return 0, state, fmt.Errorf("failed to run inference: %w", err)
	}

	outputData := outputTensor.GetData()
	if len(outputData) == 0 {
		return 0, state, fmt.Errorf("empty output from inference")
	}

	var next State
	copy(next.H[:], hnTensor.GetData())
	copy(next.C[:], cnTensor.GetData())

	return outputData[0], next, nil
}

// Destroy releases the ONNX session.
func (m *ONNXModel) Destroy() error {
	if m == nil {
		return fmt.Errorf("invalid nil model")
	}

	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
		m.session = nil
	}

	return nil
}
