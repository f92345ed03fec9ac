package coop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is
	// already running.
	ErrLoopAlreadyRunning = errors.New("coop: loop is already running")

	// ErrLoopTerminated is returned when work is submitted to a loop that has
	// fully shut down, and is the rejection reason for futures abandoned by
	// shutdown.
	ErrLoopTerminated = errors.New("coop: loop has been terminated")

	// ErrReentrantRun is returned when Run is called from a callback executing
	// on the loop itself.
	ErrReentrantRun = errors.New("coop: cannot call Run from within the loop")

	// ErrSendClosed is the panic value for Send on a closed channel, and the
	// rejection reason for send waiters cut loose by
	// [Channel.CloseAndRejectPendingSends].
	ErrSendClosed = errors.New("coop: send on closed channel")

	// ErrSemaphoreOverRelease is the panic value for releasing a semaphore
	// above its configured permit count.
	ErrSemaphoreOverRelease = errors.New("coop: semaphore released more than held")

	// ErrSchedulerStopped is the rejection reason for tasks pending when a
	// scheduler's loop terminates.
	ErrSchedulerStopped = errors.New("coop: scheduler stopped")
)

// PanicError wraps a recovered panic value from a continuation, task, or
// finally callback. The runtime never lets such panics escape to the host;
// they become the rejection reason of the downstream future.
type PanicError struct {
	// Value is the recovered panic value.
	Value any
}

// Error implements the error interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("coop: panic in callback: %v", e.Value)
}

// Unwrap returns the underlying error if the panic value is an error type,
// enabling [errors.Is] and [errors.As] through the wrapper.
func (e PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ChainCycleError is the rejection reason when a future is resolved with
// itself.
type ChainCycleError struct {
	// ID identifies the future that attempted to adopt itself.
	ID uint64
}

// Error implements the error interface.
func (e *ChainCycleError) Error() string {
	return fmt.Sprintf("coop: chaining cycle detected for future #%d", e.ID)
}

// AggregateError is the rejection reason of [Loop.Any] when every input
// future was rejected. Errors preserves the order of the input futures.
type AggregateError struct {
	Message string
	Errors  []error
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "coop: all futures were rejected"
}

// Unwrap returns the errors slice for multi-error unwrapping, so
// [errors.Is] and [errors.As] match against every contained error.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// errorValue coerces an arbitrary rejection reason into an error.
func errorValue(reason any) error {
	if err, ok := reason.(error); ok {
		return err
	}
	return fmt.Errorf("coop: rejected: %v", reason)
}
