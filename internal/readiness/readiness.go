// Package readiness tracks the staged start-up of the face detector and the
// emotion classifier and decides whether frame processing may run.
package readiness

import (
	"errors"
	"fmt"
	"sync"
)

// Stage is a discrete point in the start-up sequence.
type Stage int

const (
	Uninitialized Stage = iota
	DetectorLoading
	DetectorReady
	ModelLoading
	Ready
	Failed
)

// ErrInvalidTransition is returned when advancing past Ready or leaving Failed.
var ErrInvalidTransition = errors.New("invalid readiness transition")

var stageNames = map[Stage]string{
	Uninitialized:   "uninitialized",
	DetectorLoading: "detector_loading",
	DetectorReady:   "detector_ready",
	ModelLoading:    "model_loading",
	Ready:           "ready",
	Failed:          "failed",
}

var stageMessages = map[Stage]string{
	Uninitialized:   "Not started",
	DetectorLoading: "Loading face detector...",
	DetectorReady:   "Face detector ready",
	ModelLoading:    "Loading emotion model...",
	Ready:           "Ready",
}

// String returns the stage's stable identifier.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no further forward transitions are possible.
// Ready may still fail; Failed accepts nothing.
func (s Stage) Terminal() bool {
	return s == Ready || s == Failed
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is emitted on every transition for the presentation collaborator.
type Status struct {
	Stage   Stage  `json:"stage"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// Observer receives status updates. Observers are called outside the
// machine's lock, in transition order.
type Observer func(Status)

// Machine is the readiness state machine. Transitions are forward-only,
// except into Failed, which is terminal.
type Machine struct {
	mu        sync.Mutex
	stage     Stage
	reason    string
	observers []Observer
	notify    sync.Mutex
}

// NewMachine creates a Machine in the Uninitialized stage.
func NewMachine() *Machine {
	return &Machine{stage: Uninitialized}
}

// Observe registers fn to receive every subsequent transition.
func (m *Machine) Observe(fn Observer) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Stage returns the current stage.
func (m *Machine) Stage() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}

// Status returns the current stage with its message and failure reason.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// CanRun reports whether the pipeline may process frames.
func (m *Machine) CanRun() bool {
	return m.Stage() == Ready
}

// Advance records the result of the current loading phase. A nil err moves
// one stage forward; a non-nil err moves to Failed with err as the reason.
func (m *Machine) Advance(err error) (Status, error) {
	if err != nil {
		return m.Fail(err.Error())
	}

	m.notify.Lock()
	defer m.notify.Unlock()

	m.mu.Lock()
	if m.stage.Terminal() {
		st := m.statusLocked()
		m.mu.Unlock()
		return st, fmt.Errorf("%w: advance from %s", ErrInvalidTransition, st.Stage)
	}
	m.stage++
	return m.commitLocked(), nil
}

// Fail moves the machine to Failed from any stage, Ready included. Failing
// an already failed machine is rejected and keeps the first reason.
func (m *Machine) Fail(reason string) (Status, error) {
	if reason == "" {
		reason = "unknown error"
	}

	m.notify.Lock()
	defer m.notify.Unlock()

	m.mu.Lock()
	if m.stage == Failed {
		st := m.statusLocked()
		m.mu.Unlock()
		return st, fmt.Errorf("%w: fail from %s", ErrInvalidTransition, st.Stage)
	}
	m.stage = Failed
	m.reason = reason
	return m.commitLocked(), nil
}

// commitLocked snapshots the new status, releases m.mu and notifies
// observers. Callers hold m.notify so observers see transitions in order.
// Observers must not call Advance or Fail.
func (m *Machine) commitLocked() Status {
	st := m.statusLocked()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(st)
	}
	return st
}

func (m *Machine) statusLocked() Status {
	st := Status{Stage: m.stage, Message: stageMessages[m.stage]}
	if m.stage == Failed {
		st.Reason = m.reason
		st.Message = m.reason
	}
	return st
}
