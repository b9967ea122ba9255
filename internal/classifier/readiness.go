package classifier

import (
	"context"
	"sync"
	"sync/atomic"
)

type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	for st := StateUninitialized; st <= StateFailed; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return StateUninitialized, false
}

// Readiness is a one-way state machine:
// Uninitialized -> Initializing -> Ready | Failed.
// Observers never see a transition go backwards.
type Readiness struct {
	state    atomic.Int32
	done     chan struct{}
	doneOnce sync.Once
}

func NewReadiness() *Readiness {
	return &Readiness{done: make(chan struct{})}
}

func (r *Readiness) State() State {
	return State(r.state.Load())
}

func (r *Readiness) Ready() bool {
	return r.State() == StateReady
}

// Begin moves Uninitialized to Initializing. It returns false if
// initialization was already started by someone else.
func (r *Readiness) Begin() bool {
	return r.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing))
}

// Succeed moves Initializing to Ready.
func (r *Readiness) Succeed() bool {
	return r.finish(StateReady)
}

// Fail moves Initializing to Failed.
func (r *Readiness) Fail() bool {
	return r.finish(StateFailed)
}

func (r *Readiness) finish(to State) bool {
	if !r.state.CompareAndSwap(int32(StateInitializing), int32(to)) {
		return false
	}
	r.doneOnce.Do(func() { close(r.done) })
	return true
}

// Done is closed once a terminal state is reached.
func (r *Readiness) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until a terminal state is reached or ctx ends, and returns the
// state observed at that point.
func (r *Readiness) Wait(ctx context.Context) State {
	select {
	case <-r.done:
	case <-ctx.Done():
	}
	return r.State()
}
