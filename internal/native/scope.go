// Package native tracks the lifetime of per-frame native buffers (gocv Mats,
// encoded byte buffers, runtime tensors) so every allocation made while
// processing a frame is released before the next frame starts.
package native

import (
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Stats is a point-in-time snapshot of a Ledger.
type Stats struct {
	Allocated int64 `json:"allocated"`
	Released  int64 `json:"released"`
}

// Live returns the number of buffers allocated but not yet released.
func (s Stats) Live() int64 {
	return s.Allocated - s.Released
}

// Ledger counts native allocations and releases across all scopes.
// The zero value is ready to use.
type Ledger struct {
	allocated atomic.Int64
	released  atomic.Int64
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Stats returns the current counters.
func (l *Ledger) Stats() Stats {
	return Stats{
		Allocated: l.allocated.Load(),
		Released:  l.released.Load(),
	}
}

// Begin opens a new top-level scope accounted against this ledger.
func (l *Ledger) Begin() *Scope {
	return &Scope{ledger: l}
}

// Scope owns a set of native buffers and releases them, newest first, when
// closed. A Scope created outside a Ledger (the zero value) releases buffers
// without counting them.
type Scope struct {
	ledger   *Ledger
	mu       sync.Mutex
	releases []func()
	closed   bool
}

// Child opens a nested scope sharing the parent's ledger. The child must be
// closed independently; closing the parent does not close its children.
func (s *Scope) Child() *Scope {
	return &Scope{ledger: s.ledger}
}

// Adopt hands ownership of a native buffer to the scope. release is called
// exactly once when the scope closes. Adopting into a closed scope releases
// the buffer immediately.
func (s *Scope) Adopt(release func()) {
	if release == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if s.ledger != nil {
			s.ledger.allocated.Add(1)
		}
		s.release(release)
		return
	}
	s.releases = append(s.releases, release)
	s.mu.Unlock()

	if s.ledger != nil {
		s.ledger.allocated.Add(1)
	}
}

// NewMat allocates an empty Mat owned by the scope.
func (s *Scope) NewMat() gocv.Mat {
	m := gocv.NewMat()
	s.AdoptMat(&m)
	return m
}

// AdoptMat hands an existing Mat to the scope.
func (s *Scope) AdoptMat(m *gocv.Mat) {
	s.Adopt(func() { m.Close() })
}

// Len returns the number of buffers currently owned by the scope.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}

// Close releases every owned buffer in reverse acquisition order.
// Close is idempotent.
func (s *Scope) Close() {
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		s.release(releases[i])
	}
}

func (s *Scope) release(fn func()) {
	fn()
	if s.ledger != nil {
		s.ledger.released.Add(1)
	}
}
