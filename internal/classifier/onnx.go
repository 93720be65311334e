package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	onnxrt "github.com/yalue/onnxruntime_go"

	"github.com/ayusman/moodlens/internal/native"
	"github.com/ayusman/moodlens/internal/preprocess"
)

// Config controls the ONNX runtime session.
type Config struct {
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// platform default search path.
	LibraryPath string
	// NumThreads limits intra-op parallelism; 0 lets the runtime decide.
	NumThreads int
	Logger     *slog.Logger
}

// DefaultConfig returns the runtime defaults.
func DefaultConfig() Config {
	return Config{
		Logger: slog.Default(),
	}
}

var envMu sync.Mutex

// initEnvironment initializes the process-wide runtime once.
func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxrt.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		onnxrt.SetSharedLibraryPath(libraryPath)
	}
	if err := onnxrt.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

// ONNXClassifier runs an image classification model through onnxruntime.
// The model must take a single [1,3,64,64] float input and produce a single
// [1,N] float output.
type ONNXClassifier struct {
	config  Config
	session *onnxrt.DynamicAdvancedSession
	input   string
	output  string
	width   int

	mu     sync.Mutex
	closed bool
}

// NewONNXClassifier builds a session from model bytes. Input and output
// names are discovered once here and reused for every call.
func NewONNXClassifier(model []byte, cfg Config) (*ONNXClassifier, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(model) == 0 {
		return nil, errors.New("empty model")
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if len(in.Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input, got %dD", len(in.Dimensions))
	}
	for i, d := range in.Dimensions {
		if d > 0 && d != preprocess.Shape[i] {
			return nil, fmt.Errorf("model input %v does not accept %v", in.Dimensions, preprocess.Shape)
		}
	}

	opts, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	defer opts.Destroy()
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("session opts: %w", err)
		}
	}

	session, err := onnxrt.NewDynamicAdvancedSessionWithONNXData(model,
		[]string{in.Name}, []string{out.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	c := &ONNXClassifier{
		config:  cfg,
		session: session,
		input:   in.Name,
		output:  out.Name,
	}

	if n := len(out.Dimensions); n > 0 && out.Dimensions[n-1] > 0 {
		c.width = int(out.Dimensions[n-1])
	} else {
		probe := preprocess.Tensor{
			Data:  make([]float32, preprocess.Channels*preprocess.Size*preprocess.Size),
			Shape: preprocess.Shape,
		}
		var scope native.Scope
		logits, err := c.run(&scope, probe)
		scope.Close()
		if err != nil {
			session.Destroy()
			return nil, fmt.Errorf("probe output width: %w", err)
		}
		c.width = len(logits)
	}

	cfg.Logger.Info("emotion model loaded",
		"input", c.input, "output", c.output, "classes", c.width)
	return c, nil
}

// Classify runs the model once and returns a copy of the raw scores. The
// runtime call cannot be interrupted, so ctx is not consulted and a frame
// that reached inference runs to completion.
func (c *ONNXClassifier) Classify(_ context.Context, scope *native.Scope, input preprocess.Tensor) ([]float32, error) {
	if input.Len() != preprocess.Channels*preprocess.Size*preprocess.Size {
		return nil, fmt.Errorf("%w: input has %d values", ErrInferenceFailed, input.Len())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: classifier is closed", ErrInferenceFailed)
	}
	return c.run(scope, input)
}

func (c *ONNXClassifier) run(scope *native.Scope, input preprocess.Tensor) ([]float32, error) {
	tensor, err := onnxrt.NewTensor(onnxrt.NewShape(input.Shape[:]...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: tensor: %v", ErrInferenceFailed, err)
	}
	scope.Adopt(func() { tensor.Destroy() })

	outputs := []onnxrt.Value{nil}
	if err := c.session.Run([]onnxrt.Value{tensor}, outputs); err != nil {
		return nil, fmt.Errorf("%w: run: %v", ErrInferenceFailed, err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("%w: no output", ErrInferenceFailed)
	}
	result := outputs[0]
	scope.Adopt(func() { result.Destroy() })

	t, ok := result.(*onnxrt.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output type %T", ErrInferenceFailed, result)
	}

	data := t.GetData()
	logits := make([]float32, len(data))
	copy(logits, data)
	return logits, nil
}

// OutputWidth returns the number of classes the model scores.
func (c *ONNXClassifier) OutputWidth() int {
	return c.width
}

// Close destroys the session. The runtime environment stays initialized for
// the life of the process.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.session.Destroy()
}
