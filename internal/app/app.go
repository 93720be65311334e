// Package app wires capture, detection, preprocessing and classification
// into the readiness-gated emotion pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/moodlens/internal/assets"
	"github.com/ayusman/moodlens/internal/capture"
	"github.com/ayusman/moodlens/internal/classifier"
	"github.com/ayusman/moodlens/internal/detector"
	"github.com/ayusman/moodlens/internal/native"
	"github.com/ayusman/moodlens/internal/present"
	"github.com/ayusman/moodlens/internal/readiness"
)

var (
	// ErrInitialization is returned when the detector or model cannot be
	// brought up. The readiness machine is Failed afterwards.
	ErrInitialization = errors.New("initialization failed")
	// ErrNotReady is returned when a frame is requested before Ready.
	ErrNotReady = errors.New("pipeline not ready")
	// ErrBusy is returned when a frame is requested while another is in flight.
	ErrBusy = errors.New("frame already in flight")
)

// DefaultJPEGQuality is used for snapshots when Config.JPEGQuality is unset.
const DefaultJPEGQuality = 80

// Config holds configuration options for the application.
type Config struct {
	Assets assets.Source
	Camera capture.Camera
	Sink   present.Sink
	Logger *slog.Logger

	Detector   detector.Config
	Classifier classifier.Config

	// OpenDetector and OpenClassifier build the capabilities from loaded
	// assets. Nil selects the cascade and onnxruntime implementations.
	OpenDetector   func(cascadePath string) (detector.Detector, error)
	OpenClassifier func(model []byte) (classifier.Classifier, error)

	// FPS is the tick rate used by Start; 0 uses the camera's rate.
	FPS         int
	JPEGQuality int
	// StartPaused leaves frame processing disabled until SetEnabled(true).
	StartPaused bool
}

// Session holds the capabilities built during initialization. It is
// immutable once published and shared by every frame.
type Session struct {
	Detector   detector.Detector
	Classifier classifier.Classifier
	Catalog    classifier.Catalog
}

// Close releases the detector and classifier.
func (s *Session) Close() error {
	return errors.Join(s.Detector.Close(), s.Classifier.Close())
}

// App is the main application that orchestrates emotion inference.
type App struct {
	config  Config
	logger  *slog.Logger
	camera  capture.Camera
	sink    present.Sink
	machine *readiness.Machine
	ledger  *native.Ledger

	initOnce sync.Once
	initErr  error
	session  atomic.Pointer[Session]

	state   atomic.Int32
	enabled atomic.Bool
	seq     atomic.Uint64
	stats   counters

	lastMu sync.RWMutex
	last   *classifier.Outcome

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	stopped atomic.Bool
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Sink == nil {
		config.Sink = present.Discard
	}
	if config.Camera == nil {
		camCfg := capture.DefaultConfig()
		camCfg.Logger = config.Logger
		config.Camera = capture.NewCamera(camCfg)
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = DefaultJPEGQuality
	}
	if config.OpenDetector == nil {
		detCfg := config.Detector
		config.OpenDetector = func(path string) (detector.Detector, error) {
			detCfg.CascadePath = path
			return detector.NewCascadeDetector(detCfg)
		}
	}
	if config.OpenClassifier == nil {
		clsCfg := config.Classifier
		if clsCfg.Logger == nil {
			clsCfg.Logger = config.Logger
		}
		config.OpenClassifier = func(model []byte) (classifier.Classifier, error) {
			return classifier.NewONNXClassifier(model, clsCfg)
		}
	}

	a := &App{
		config:  config,
		logger:  config.Logger,
		camera:  config.Camera,
		sink:    config.Sink,
		machine: readiness.NewMachine(),
		ledger:  native.NewLedger(),
	}
	a.enabled.Store(!config.StartPaused)

	a.machine.Observe(func(st readiness.Status) {
		if st.Stage == readiness.Failed {
			a.logger.Error("pipeline failed", "reason", st.Reason)
		} else {
			a.logger.Info(st.Message, "stage", st.Stage.String())
		}
		a.sink.PublishStatus(st)
	})

	return a
}

// Initialize loads the detector, then the model, walking the readiness
// machine through its stages. It runs once; later calls return the first
// result.
func (a *App) Initialize(ctx context.Context) error {
	a.initOnce.Do(func() {
		a.initErr = a.initialize(ctx)
	})
	return a.initErr
}

func (a *App) initialize(ctx context.Context) error {
	if a.config.Assets == nil {
		a.machine.Fail("no asset source configured")
		return fmt.Errorf("%w: no asset source configured", ErrInitialization)
	}

	var det detector.Detector
	loadDetector := func(ctx context.Context) error {
		path, err := a.config.Assets.CascadePath()
		if err != nil {
			return err
		}
		det, err = a.config.OpenDetector(path)
		return err
	}

	loadModel := func(ctx context.Context) error {
		catalog, err := a.config.Assets.Catalog()
		if err != nil {
			return err
		}
		model, err := a.config.Assets.Model()
		if err != nil {
			return err
		}
		cls, err := a.config.OpenClassifier(model)
		if err != nil {
			return err
		}
		if err := catalog.Validate(cls.OutputWidth()); err != nil {
			cls.Close()
			return err
		}
		if err := ctx.Err(); err != nil {
			cls.Close()
			return err
		}

		a.session.Store(&Session{Detector: det, Classifier: cls, Catalog: catalog})
		return nil
	}

	seq := readiness.NewSequence(a.machine,
		readiness.Step{Name: "detector", Run: loadDetector},
		readiness.Step{Name: "model", Run: loadModel},
	)
	// Wait returns only after both steps have finished, so det and the
	// session are no longer written concurrently.
	if _, err := seq.Wait(ctx); err != nil {
		if sess := a.session.Swap(nil); sess != nil {
			a.closeSession(sess)
		} else if det != nil {
			det.Close()
		}
		return fmt.Errorf("%w: %v", ErrInitialization, err)
	}

	// Stop ran while the model was loading and found no session to close.
	if a.stopped.Load() {
		if sess := a.session.Swap(nil); sess != nil {
			a.closeSession(sess)
		}
		a.machine.Fail("stopped during initialization")
		return fmt.Errorf("%w: stopped during initialization", ErrInitialization)
	}
	return nil
}

func (a *App) closeSession(sess *Session) {
	if err := sess.Close(); err != nil {
		a.logger.Warn("error closing session", "error", err)
	}
}

// Readiness returns the current readiness status.
func (a *App) Readiness() readiness.Status {
	return a.machine.Status()
}

// Session returns the loaded capabilities, or nil before Ready.
func (a *App) Session() *Session {
	return a.session.Load()
}

// SetEnabled pauses or resumes frame processing. While paused, ticks are
// ignored without being counted as dropped.
func (a *App) SetEnabled(enabled bool) {
	if a.enabled.Swap(enabled) != enabled {
		a.logger.Info("pipeline toggled", "enabled", enabled)
	}
}

// IsEnabled returns whether frame processing is currently enabled.
func (a *App) IsEnabled() bool {
	return a.enabled.Load()
}

// Start opens the camera and drives the pipeline from a ticker until Stop
// or ctx is done. Start does not wait for Ready; ticks before Ready are
// dropped.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	fps := a.config.FPS
	if fps <= 0 {
		fps = a.camera.FPS()
	}
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	a.camera.SetFPS(fps)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running.Store(true)

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer ticker.Stop()
		a.Run(runCtx, ticker.C)
	}()

	a.logger.Info("pipeline started", "fps", fps)
	return nil
}

// Stop halts the pipeline, waits for the in-flight frame and releases the
// camera and session.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped.Store(true)
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.wg.Wait()
	a.running.Store(false)

	if err := a.camera.Close(); err != nil {
		a.logger.Warn("error closing camera", "error", err)
	}

	if sess := a.session.Swap(nil); sess != nil {
		a.closeSession(sess)
	}

	a.logger.Info("pipeline stopped")
}

// LastOutcome returns the most recent successful classification.
func (a *App) LastOutcome() *classifier.Outcome {
	a.lastMu.RLock()
	defer a.lastMu.RUnlock()
	return a.last
}

func (a *App) setLast(o classifier.Outcome) {
	a.lastMu.Lock()
	defer a.lastMu.Unlock()
	a.last = &o
}

// Status is a snapshot of the whole application, served by the status API.
type Status struct {
	Readiness readiness.Status    `json:"readiness"`
	Enabled   bool                `json:"enabled"`
	Running   bool                `json:"running"`
	State     FrameState          `json:"state"`
	Stats     Stats               `json:"stats"`
	Last      *classifier.Outcome `json:"last,omitempty"`
	Labels    []string            `json:"labels,omitempty"`
}

// Status returns a snapshot of the application.
func (a *App) Status() Status {
	st := Status{
		Readiness: a.machine.Status(),
		Enabled:   a.IsEnabled(),
		Running:   a.running.Load(),
		State:     a.State(),
		Stats:     a.Stats(),
		Last:      a.LastOutcome(),
	}
	if sess := a.session.Load(); sess != nil {
		st.Labels = sess.Catalog.Labels()
	}
	return st
}
