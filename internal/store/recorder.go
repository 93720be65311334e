package store

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/moodlens/internal/present"
	"github.com/ayusman/moodlens/internal/readiness"
)

// RecorderConfig controls which outcomes are persisted.
type RecorderConfig struct {
	// MinInterval re-records an unchanged label after this long.
	MinInterval time.Duration
	QueueSize   int
	Logger      *slog.Logger
}

// DefaultRecorderConfig returns the recorder defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		MinInterval: 5 * time.Second,
		QueueSize:   64,
		Logger:      slog.Default(),
	}
}

// Recorder is a present.Sink that writes fresh outcomes to the history.
// An outcome is recorded when its label differs from the last recorded one
// or MinInterval has passed. Writes happen on a background goroutine; when
// the queue is full the outcome is dropped.
type Recorder struct {
	repo   *OutcomeRepository
	config RecorderConfig
	queue  chan *Outcome
	done   chan struct{}

	mu        sync.Mutex
	closed    bool
	lastLabel string
	lastAt    time.Time

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewRecorder starts a recorder writing to repo.
func NewRecorder(repo *OutcomeRepository, cfg RecorderConfig) *Recorder {
	defaults := DefaultRecorderConfig()
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaults.MinInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}

	r := &Recorder{
		repo:   repo,
		config: cfg,
		queue:  make(chan *Outcome, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for o := range r.queue {
		if err := r.repo.Create(o); err != nil {
			r.config.Logger.Warn("failed to record outcome", "label", o.Label, "error", err)
			continue
		}
		r.written.Add(1)
	}
}

// PublishStatus is a no-op; only frames are recorded.
func (r *Recorder) PublishStatus(readiness.Status) {}

// PublishFrame queues f's outcome if it should be recorded.
func (r *Recorder) PublishFrame(f present.Frame) {
	if f.Outcome == nil || f.Stale {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if f.Outcome.Label == r.lastLabel && f.Time.Sub(r.lastAt) < r.config.MinInterval {
		return
	}

	o := &Outcome{
		Seq:           f.Seq,
		Label:         f.Outcome.Label,
		Confidence:    f.Outcome.Confidence,
		Probabilities: f.Outcome.Probabilities,
		CreatedAt:     f.Time.UTC(),
	}
	if f.Selected != nil {
		o.RegionX, o.RegionY = f.Selected.X, f.Selected.Y
		o.RegionW, o.RegionH = f.Selected.Width, f.Selected.Height
	}

	select {
	case r.queue <- o:
		r.lastLabel = o.Label
		r.lastAt = f.Time
	default:
		r.dropped.Add(1)
	}
}

// Written returns the number of outcomes persisted.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Dropped returns the number of outcomes lost to a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close flushes queued outcomes and stops the writer.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
}
