package plugin

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ayusman/moodlens/internal/present"
	"github.com/ayusman/moodlens/internal/readiness"
	"github.com/ayusman/moodlens/internal/store"
)

// BindingSource looks up the enabled bindings for a label.
type BindingSource interface {
	ListByLabel(label string) ([]*store.Binding, error)
}

// DispatcherConfig controls the hook queue.
type DispatcherConfig struct {
	QueueSize int
	Logger    *slog.Logger
}

// DefaultDispatcherConfig returns the dispatcher defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize: 16,
		Logger:    slog.Default(),
	}
}

type change struct {
	emotion  Emotion
	previous string
}

// Dispatcher is a present.Sink that runs plugins when the fresh emotion
// label changes. Each change runs the bindings stored for the new label
// and every plugin subscribed to EventEmotionChanged. Plugins run on a
// single background worker; changes arriving while the queue is full are
// dropped.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	bindings BindingSource
	config   DispatcherConfig

	queue  chan change
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	current string

	runs     atomic.Uint64
	failures atomic.Uint64
	dropped  atomic.Uint64
}

// NewDispatcher starts a dispatcher. bindings may be nil, in which case
// only event subscribers run.
func NewDispatcher(manager *Manager, executor *Executor, bindings BindingSource, cfg DispatcherConfig) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		manager:  manager,
		executor: executor,
		bindings: bindings,
		config:   cfg,
		queue:    make(chan change, cfg.QueueSize),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	go d.run()
	return d
}

// PublishStatus is a no-op.
func (d *Dispatcher) PublishStatus(readiness.Status) {}

// PublishFrame queues a change when f carries a fresh outcome whose label
// differs from the last one seen.
func (d *Dispatcher) PublishFrame(f present.Frame) {
	if f.Outcome == nil || f.Stale {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || f.Outcome.Label == d.current {
		return
	}

	c := change{
		emotion:  Emotion{Label: f.Outcome.Label, Confidence: f.Outcome.Confidence},
		previous: d.current,
	}
	d.current = f.Outcome.Label

	select {
	case d.queue <- c:
	default:
		d.dropped.Add(1)
		d.config.Logger.Warn("hook queue full, dropping emotion change", "label", c.emotion.Label)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for c := range d.queue {
		d.dispatch(c)
	}
}

func (d *Dispatcher) dispatch(c change) {
	logger := d.config.Logger.With("label", c.emotion.Label, "previous", c.previous)

	if d.bindings != nil {
		bindings, err := d.bindings.ListByLabel(c.emotion.Label)
		if err != nil {
			logger.Warn("failed to load bindings", "error", err)
		}
		for _, b := range bindings {
			if c.emotion.Confidence < b.MinConfidence {
				continue
			}
			p, err := d.manager.Get(b.PluginName)
			if err != nil {
				d.failures.Add(1)
				logger.Warn("binding refers to unknown plugin", "binding", b.ID, "plugin", b.PluginName)
				continue
			}
			d.execute(logger, p, &Request{
				Action:   b.ActionName,
				Event:    EventEmotionChanged,
				Emotion:  c.emotion,
				Previous: c.previous,
				Config:   b.Config,
			})
		}
	}

	for _, p := range d.manager.Subscribers(EventEmotionChanged) {
		d.execute(logger, p, &Request{
			Action:   EventEmotionChanged,
			Event:    EventEmotionChanged,
			Emotion:  c.emotion,
			Previous: c.previous,
			Config:   json.RawMessage("{}"),
		})
	}
}

func (d *Dispatcher) execute(logger *slog.Logger, p *Plugin, req *Request) {
	resp, err := d.executor.Execute(d.ctx, p, req)
	switch {
	case err != nil:
		d.failures.Add(1)
		logger.Warn("plugin failed", "plugin", p.Manifest.Name, "action", req.Action, "error", err)
	case !resp.Success:
		d.failures.Add(1)
		logger.Warn("plugin reported failure", "plugin", p.Manifest.Name, "action", req.Action, "error", resp.Error)
	default:
		d.runs.Add(1)
		logger.Debug("plugin ran", "plugin", p.Manifest.Name, "action", req.Action)
	}
}

// Runs returns the number of successful plugin runs.
func (d *Dispatcher) Runs() uint64 { return d.runs.Load() }

// Failures returns the number of failed plugin runs.
func (d *Dispatcher) Failures() uint64 { return d.failures.Load() }

// Dropped returns the number of changes lost to a full queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Close runs the queued changes and stops the worker. It is safe to call
// more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.done
	d.cancel()
}
