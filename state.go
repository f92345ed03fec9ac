package coop

import (
	"sync/atomic"
)

// LoopState represents the current state of the event loop.
//
// State Machine:
//
//	StateAwake → StateRunning           [Run]
//	StateRunning ⇄ StateSleeping        [tick idle / wake, via CAS]
//	StateRunning → StateTerminating     [Shutdown / Close / ctx cancel]
//	StateSleeping → StateTerminating    [Shutdown / Close]
//	StateTerminating → StateTerminated  [drain complete]
//	StateTerminated                     (terminal)
//
// Temporary transitions (Running, Sleeping) must use TryTransition (CAS);
// Store is reserved for the irreversible move to Terminated.
type LoopState uint64

const (
	// StateAwake indicates the loop has been created but not started.
	StateAwake LoopState = iota
	// StateRunning indicates the loop is actively processing tasks.
	StateRunning
	// StateSleeping indicates the loop is parked waiting for work.
	StateSleeping
	// StateTerminating indicates shutdown has been requested but not completed.
	StateTerminating
	// StateTerminated indicates the loop has fully shut down.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s LoopState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// loopState is a lock-free state machine over [LoopState] values.
type loopState struct {
	v atomic.Uint64
}

func newLoopState() *loopState {
	s := &loopState{}
	s.v.Store(uint64(StateAwake))
	return s
}

// Load returns the current state atomically.
func (s *loopState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state. Reserved for irreversible transitions.
func (s *loopState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to another.
func (s *loopState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// CanAcceptWork reports whether new callbacks may still be queued.
// Terminating loops accept work so in-flight chains can drain.
func (s *loopState) CanAcceptWork() bool {
	return s.Load() != StateTerminated
}
