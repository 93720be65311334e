package classifier

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ayusman/moodlens/internal/native"
	"github.com/ayusman/moodlens/internal/preprocess"
)

// MockClassifier is a test implementation of the Classifier interface.
type MockClassifier struct {
	mu     sync.Mutex
	logits []float32
	err    error
	gate   chan struct{}

	calls   atomic.Int64
	active  atomic.Int64
	maxSeen atomic.Int64
}

// NewMockClassifier creates a mock that returns logits on every call.
func NewMockClassifier(logits ...float32) *MockClassifier {
	return &MockClassifier{logits: logits}
}

// SetLogits replaces the scores returned by Classify.
func (m *MockClassifier) SetLogits(logits ...float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logits = logits
}

// SetError makes Classify fail with err; nil clears it.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Block makes subsequent Classify calls wait until Release is called or
// their context is done.
func (m *MockClassifier) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Release unblocks every waiting and future Classify call.
func (m *MockClassifier) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Calls returns how many times Classify has been entered.
func (m *MockClassifier) Calls() int {
	return int(m.calls.Load())
}

// Active returns the number of Classify calls currently running.
func (m *MockClassifier) Active() int {
	return int(m.active.Load())
}

// MaxConcurrent returns the highest number of simultaneous Classify calls.
func (m *MockClassifier) MaxConcurrent() int {
	return int(m.maxSeen.Load())
}

// Classify returns the configured logits or error.
func (m *MockClassifier) Classify(ctx context.Context, scope *native.Scope, input preprocess.Tensor) ([]float32, error) {
	m.calls.Add(1)
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	// Stand-in for the runtime's input and output tensors.
	if scope != nil {
		scope.Adopt(func() {})
		scope.Adopt(func() {})
	}

	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]float32, len(m.logits))
	copy(out, m.logits)
	return out, nil
}

// OutputWidth returns the number of configured logits.
func (m *MockClassifier) OutputWidth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logits)
}

// Close is a no-op for the mock classifier.
func (m *MockClassifier) Close() error {
	return nil
}
