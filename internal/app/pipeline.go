package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/moodlens/internal/classifier"
	"github.com/ayusman/moodlens/internal/detector"
	"github.com/ayusman/moodlens/internal/native"
	"github.com/ayusman/moodlens/internal/preprocess"
	"github.com/ayusman/moodlens/internal/present"
)

// FrameState is the position of the scheduler within one frame.
type FrameState int32

const (
	Idle FrameState = iota
	CapturingFrame
	Processing
	Rendering
)

var frameStateNames = [...]string{"idle", "capturing", "processing", "rendering"}

func (s FrameState) String() string {
	if s < 0 || int(s) >= len(frameStateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return frameStateNames[s]
}

// MarshalText encodes the state by name.
func (s FrameState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stats are cumulative pipeline counters.
type Stats struct {
	Frames            uint64        `json:"frames"`
	Dropped           uint64        `json:"dropped"`
	NoDetection       uint64        `json:"no_detection"`
	InferenceFailures uint64        `json:"inference_failures"`
	CaptureFailures   uint64        `json:"capture_failures"`
	LastLatency       time.Duration `json:"last_latency_ns"`
	Native            native.Stats  `json:"native"`
}

type counters struct {
	frames            atomic.Uint64
	dropped           atomic.Uint64
	noDetection       atomic.Uint64
	inferenceFailures atomic.Uint64
	captureFailures   atomic.Uint64
	lastLatency       atomic.Int64
}

// Stats returns the current counters.
func (a *App) Stats() Stats {
	return Stats{
		Frames:            a.stats.frames.Load(),
		Dropped:           a.stats.dropped.Load(),
		NoDetection:       a.stats.noDetection.Load(),
		InferenceFailures: a.stats.inferenceFailures.Load(),
		CaptureFailures:   a.stats.captureFailures.Load(),
		LastLatency:       time.Duration(a.stats.lastLatency.Load()),
		Native:            a.ledger.Stats(),
	}
}

// State returns the scheduler's current frame state.
func (a *App) State() FrameState {
	return FrameState(a.state.Load())
}

// Report describes one processed frame.
type Report struct {
	present.Frame
	Latency time.Duration
}

// Run calls Tick for every value received from ticks until ticks is closed
// or ctx is done, then waits for the in-flight frame. Ticks that arrive
// while a frame is in flight are dropped, never queued.
func (a *App) Run(ctx context.Context, ticks <-chan time.Time) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.Tick(ctx)
			}()
		}
	}
}

// Tick starts one frame if the pipeline is Ready, enabled and idle. It
// reports whether a frame was processed. A tick that finds the pipeline not
// ready or busy is counted as dropped.
func (a *App) Tick(ctx context.Context) bool {
	if !a.IsEnabled() {
		return false
	}

	_, err := a.ProcessOneFrame(ctx)
	switch {
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrBusy):
		a.stats.dropped.Add(1)
		return false
	case errors.Is(err, classifier.ErrCatalogMismatch):
		return false
	case err != nil:
		a.logger.Debug("frame failed", "error", err)
	}
	return true
}

// ProcessOneFrame captures and classifies a single frame, then publishes
// the result to the sink. Every native buffer the frame allocates is
// released before it returns.
//
// It returns ErrNotReady before Ready and ErrBusy while another frame is in
// flight. When detection or inference fails the frame is still published
// with the previous outcome marked stale, and the failure is returned with
// the report.
func (a *App) ProcessOneFrame(ctx context.Context) (Report, error) {
	sess := a.session.Load()
	if sess == nil || !a.machine.CanRun() {
		return Report{}, ErrNotReady
	}
	if !a.state.CompareAndSwap(int32(Idle), int32(CapturingFrame)) {
		return Report{}, ErrBusy
	}
	defer a.state.Store(int32(Idle))

	return a.process(ctx, sess)
}

func (a *App) process(ctx context.Context, sess *Session) (Report, error) {
	start := time.Now()

	scope := a.ledger.Begin()
	defer scope.Close()

	frame, err := a.camera.ReadFrame(scope)
	if err != nil {
		a.stats.captureFailures.Add(1)
		return Report{}, fmt.Errorf("capture: %w", err)
	}

	a.state.Store(int32(Processing))
	f := present.Frame{
		Seq:    a.seq.Add(1),
		Time:   start,
		Width:  frame.Cols(),
		Height: frame.Rows(),
	}

	frameErr := a.analyze(ctx, scope, sess, frame, &f)
	if errors.Is(frameErr, classifier.ErrCatalogMismatch) {
		a.machine.Fail(frameErr.Error())
		return Report{}, frameErr
	}

	a.state.Store(int32(Rendering))
	if w, ok := a.sink.(present.FrameWanter); ok && w.WantsJPEG() {
		f.JPEG = a.snapshot(scope, frame)
	}
	a.sink.PublishFrame(f)

	latency := time.Since(start)
	a.stats.frames.Add(1)
	a.stats.lastLatency.Store(int64(latency))

	return Report{Frame: f, Latency: latency}, frameErr
}

// analyze fills f with the detection and classification results.
func (a *App) analyze(ctx context.Context, scope *native.Scope, sess *Session, frame *gocv.Mat, f *present.Frame) error {
	regions, err := sess.Detector.Detect(scope, frame)
	if err != nil {
		a.stats.inferenceFailures.Add(1)
		a.retain(f)
		a.logger.Warn("face detection failed", "seq", f.Seq, "error", err)
		return fmt.Errorf("detect: %w", err)
	}
	f.Regions = regions

	region, ok := detector.SelectLargest(regions)
	if !ok {
		a.stats.noDetection.Add(1)
		a.retain(f)
		return nil
	}
	f.Selected = &region

	tensor, err := preprocess.Prepare(scope, frame, region)
	if errors.Is(err, preprocess.ErrEmptyInput) {
		a.stats.noDetection.Add(1)
		a.retain(f)
		return nil
	}
	if err != nil {
		a.stats.inferenceFailures.Add(1)
		a.retain(f)
		return fmt.Errorf("preprocess: %w", err)
	}

	logits, err := sess.Classifier.Classify(ctx, scope, tensor)
	if err != nil {
		a.stats.inferenceFailures.Add(1)
		a.retain(f)
		a.logger.Warn("inference failed", "seq", f.Seq, "error", err)
		return fmt.Errorf("classify: %w", err)
	}

	outcome, err := classifier.Decode(logits, sess.Catalog)
	if err != nil {
		if !errors.Is(err, classifier.ErrCatalogMismatch) {
			a.stats.inferenceFailures.Add(1)
			a.retain(f)
		}
		return err
	}

	a.setLast(outcome)
	f.Outcome = &outcome
	return nil
}

// retain carries the previous outcome into f, marked stale.
func (a *App) retain(f *present.Frame) {
	if last := a.LastOutcome(); last != nil {
		f.Outcome = last
		f.Stale = true
	}
}

func (a *App) snapshot(scope *native.Scope, frame *gocv.Mat) []byte {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame,
		[]int{int(gocv.IMWriteJpegQuality), a.config.JPEGQuality})
	if err != nil {
		a.logger.Debug("snapshot encode failed", "error", err)
		return nil
	}
	scope.Adopt(func() { buf.Close() })
	return append([]byte(nil), buf.GetBytes()...)
}
