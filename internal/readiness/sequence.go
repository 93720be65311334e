package readiness

import (
	"context"
	"fmt"
	"sync"
)

// Step is one loading phase of the start-up sequence.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Sequence drives a Machine through the detector and model loading phases
// exactly once. It replaces timed re-checks with a single asynchronous run
// that publishes each transition as it happens.
type Sequence struct {
	machine  *Machine
	detector Step
	model    Step

	once   sync.Once
	done   chan struct{}
	result Status
}

// NewSequence creates a sequence that loads the detector, then the model.
func NewSequence(m *Machine, detector, model Step) *Sequence {
	return &Sequence{
		machine:  m,
		detector: detector,
		model:    model,
		done:     make(chan struct{}),
	}
}

// Start launches the sequence in the background. Calling Start again has no
// effect; the returned channel is closed when the sequence has finished.
func (s *Sequence) Start(ctx context.Context) <-chan struct{} {
	s.once.Do(func() {
		go func() {
			defer close(s.done)
			s.result = s.run(ctx)
		}()
	})
	return s.done
}

// Wait starts the sequence if needed and blocks until it has finished. A
// cancelled ctx does not return early: the running step observes ctx and the
// machine ends in Failed before Wait returns. The returned error is non-nil
// when the machine ended in Failed.
func (s *Sequence) Wait(ctx context.Context) (Status, error) {
	<-s.Start(ctx)
	if s.result.Stage == Failed {
		return s.result, fmt.Errorf("initialization failed: %s", s.result.Reason)
	}
	return s.result, nil
}

func (s *Sequence) run(ctx context.Context) Status {
	for _, step := range []Step{s.detector, s.model} {
		// Enter the loading stage.
		if _, err := s.machine.Advance(nil); err != nil {
			return s.machine.Status()
		}

		err := runStep(ctx, step)
		if err == nil {
			// A step that ignores ctx must not complete a cancelled start-up.
			err = ctx.Err()
		}
		if err != nil {
			err = fmt.Errorf("%s: %w", step.Name, err)
		}
		st, _ := s.machine.Advance(err)
		if st.Stage == Failed {
			return st
		}
	}
	return s.machine.Status()
}

func runStep(ctx context.Context, step Step) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if step.Run == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Run(ctx)
}
