// Package present defines how pipeline results leave the pipeline: every
// consumer (web feed, tray, history, hooks) implements Sink.
package present

import (
	"sync"
	"time"

	"github.com/ayusman/moodlens/internal/classifier"
	"github.com/ayusman/moodlens/internal/detector"
	"github.com/ayusman/moodlens/internal/readiness"
)

// Frame is the per-frame result handed to sinks.
type Frame struct {
	Seq      uint64            `json:"seq"`
	Time     time.Time         `json:"time"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Regions  []detector.Region `json:"regions"`
	Selected *detector.Region  `json:"selected,omitempty"`
	// Outcome is nil until the first successful classification.
	Outcome *classifier.Outcome `json:"outcome,omitempty"`
	// Stale is set when Outcome was carried over from an earlier frame.
	Stale bool `json:"stale"`
	// JPEG holds an encoded snapshot when a sink asked for one.
	JPEG []byte `json:"-"`
}

// Sink receives readiness changes and frame results. Calls are made from
// the pipeline goroutine and must not block.
type Sink interface {
	PublishStatus(st readiness.Status)
	PublishFrame(f Frame)
}

// FrameWanter is implemented by sinks that need JPEG snapshots. The
// pipeline only encodes a snapshot when some sink wants one.
type FrameWanter interface {
	WantsJPEG() bool
}

// MultiSink fans out to several sinks. Sinks can be added while the
// pipeline runs.
type MultiSink struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewMultiSink creates a fan-out over sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

// Add registers another sink. Nil sinks are ignored.
func (m *MultiSink) Add(s Sink) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

func (m *MultiSink) snapshot() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sinks
}

// PublishStatus forwards st to every sink.
func (m *MultiSink) PublishStatus(st readiness.Status) {
	for _, s := range m.snapshot() {
		s.PublishStatus(st)
	}
}

// PublishFrame forwards f to every sink.
func (m *MultiSink) PublishFrame(f Frame) {
	for _, s := range m.snapshot() {
		s.PublishFrame(f)
	}
}

// WantsJPEG reports whether any registered sink wants snapshots.
func (m *MultiSink) WantsJPEG() bool {
	for _, s := range m.snapshot() {
		if w, ok := s.(FrameWanter); ok && w.WantsJPEG() {
			return true
		}
	}
	return false
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) PublishStatus(readiness.Status) {}
func (discard) PublishFrame(Frame)             {}

// Recorder is a Sink that keeps everything it receives. It is used by tests
// and by one-shot classification.
type Recorder struct {
	mu       sync.Mutex
	statuses []readiness.Status
	frames   []Frame
	wantJPEG bool
}

// NewRecorder creates an empty Recorder. When wantJPEG is true the pipeline
// attaches snapshots to recorded frames.
func NewRecorder(wantJPEG bool) *Recorder {
	return &Recorder{wantJPEG: wantJPEG}
}

func (r *Recorder) PublishStatus(st readiness.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *Recorder) PublishFrame(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *Recorder) WantsJPEG() bool {
	return r.wantJPEG
}

// Statuses returns a copy of the received statuses.
func (r *Recorder) Statuses() []readiness.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]readiness.Status(nil), r.statuses...)
}

// Frames returns a copy of the received frames.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

// Last returns the most recent frame.
func (r *Recorder) Last() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Frame{}, false
	}
	return r.frames[len(r.frames)-1], true
}
