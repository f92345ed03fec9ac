package coop

import (
	"sync"
	"sync/atomic"
)

// FutureState represents the lifecycle state of a [Future]. A future starts
// Pending and transitions exactly once to either Fulfilled or Rejected;
// the transition is irreversible.
type FutureState int32

const (
	// Pending indicates the future has not settled yet.
	Pending FutureState = iota
	// Fulfilled indicates the future completed successfully with a value.
	Fulfilled
	// Rejected indicates the future failed with a reason.
	Rejected
)

// String returns a human-readable representation of the state.
func (s FutureState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Fulfilled:
		return "Fulfilled"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Future is a settle-once container for a value or error that will be known
// later.
//
// Futures are created through [Loop.NewFuture] (or indirectly by
// [Scheduler.Submit], [Channel.Send], [Channel.Receive], and
// [Semaphore.Acquire]) and consumed by chaining continuations with
// [Future.Then], [Future.Catch], and [Future.Finally].
//
// Settlement is idempotent: only the first resolve or reject takes effect,
// and later calls are silent no-ops. Continuations fire exactly once, in
// registration order, always as loop microtasks; a caller never observes a
// continuation running before Then has returned.
//
// The resolve and reject functions may be called from any goroutine.
// Continuations always execute on the loop goroutine.
type Future struct {
	result any

	loop *Loop

	// h0 is the first continuation, embedded to avoid a slice allocation;
	// most futures have exactly one.
	h0 handler
	hn []handler

	// channels registered via ToChannel while pending.
	channels []chan any

	state atomic.Int32

	// handled is set once a continuation that forwards or consumes a
	// rejection has been attached; used by unhandled-rejection detection.
	handled atomic.Bool

	h0Used bool
	id     uint64

	mu sync.Mutex
}

// handler represents a continuation registered on a future. A handler with
// neither callback adopts the settlement into target untouched.
type handler struct {
	onFulfilled func(any) any
	onRejected  func(any) any
	target      *Future
}

// ResolveFunc fulfills a future with a value. Calling it on an
// already-settled future has no effect. Safe from any goroutine.
type ResolveFunc func(any)

// RejectFunc rejects a future with a reason. Calling it on an
// already-settled future has no effect. Safe from any goroutine.
type RejectFunc func(any)

// NewFuture creates a new pending future along with its resolve and reject
// functions.
//
//	f, resolve, reject := loop.NewFuture()
//	go func() {
//	    v, err := doWork()
//	    if err != nil {
//	        reject(err)
//	    } else {
//	        resolve(v)
//	    }
//	}()
func (l *Loop) NewFuture() (*Future, ResolveFunc, RejectFunc) {
	f := l.newFuture()
	return f, f.resolve, f.reject
}

func (l *Loop) newFuture() *Future {
	return &Future{
		loop: l,
		id:   l.nextFutureID.Add(1),
	}
}

// Resolved returns a future already fulfilled with v. If v is itself a
// future, the result adopts its eventual outcome.
func (l *Loop) Resolved(v any) *Future {
	f := l.newFuture()
	f.resolve(v)
	return f
}

// Rejected returns a future already rejected with reason.
func (l *Loop) Rejected(reason any) *Future {
	f := l.newFuture()
	f.reject(reason)
	return f
}

// State returns the current [FutureState]. Safe from any goroutine.
func (f *Future) State() FutureState {
	return FutureState(f.state.Load())
}

// Value returns the fulfillment value, or nil while pending or rejected.
func (f *Future) Value() any {
	if f.state.Load() == int32(Fulfilled) {
		return f.result
	}
	return nil
}

// Reason returns the rejection reason, or nil while pending or fulfilled.
func (f *Future) Reason() any {
	if f.state.Load() == int32(Rejected) {
		return f.result
	}
	return nil
}

// addHandler attaches a continuation. If the future is already settled the
// continuation is scheduled as a microtask immediately; otherwise it is
// stored until settlement.
func (f *Future) addHandler(h handler) {
	if h.onRejected != nil || h.target != nil {
		// The rejection either has a consumer or flows on to a child, which
		// is then tracked in its own right.
		f.handled.Store(true)
	}

	if st := f.state.Load(); st != int32(Pending) {
		f.scheduleHandler(h, FutureState(st), f.result)
		return
	}

	f.mu.Lock()
	if st := f.state.Load(); st != int32(Pending) {
		f.mu.Unlock()
		f.scheduleHandler(h, FutureState(st), f.result)
		return
	}

	if !f.h0Used {
		f.h0 = h
		f.h0Used = true
	} else {
		f.hn = append(f.hn, h)
	}
	f.mu.Unlock()
}

// scheduleHandler enqueues a continuation for execution via microtask.
func (f *Future) scheduleHandler(h handler, state FutureState, result any) {
	err := f.loop.QueueMicrotask(func() {
		f.executeHandler(h, state, result)
	})
	if err != nil && h.target != nil {
		// Loop gone; abandon the chain.
		h.target.reject(ErrLoopTerminated)
	}
}

// executeHandler runs a single continuation with the frozen settlement.
func (f *Future) executeHandler(h handler, state FutureState, result any) {
	var fn func(any) any
	if state == Fulfilled {
		fn = h.onFulfilled
	} else {
		fn = h.onRejected
	}

	// No callback for this branch: pass the settlement through.
	if fn == nil {
		if h.target == nil {
			return
		}
		if state == Fulfilled {
			h.target.resolve(result)
		} else {
			h.target.reject(result)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if h.target != nil {
				h.target.reject(PanicError{Value: r})
			}
		}
	}()

	res := fn(result)
	if h.target != nil {
		h.target.resolve(res)
	}
}

// resolve fulfills the future. If value is itself a *Future, the settlement
// is adopted from it (flattened one level) instead of nesting.
func (f *Future) resolve(value any) {
	if other, ok := value.(*Future); ok {
		if other == f {
			f.reject(&ChainCycleError{ID: f.id})
			return
		}
		other.addHandler(handler{target: f})
		return
	}

	f.mu.Lock()
	if f.state.Load() != int32(Pending) {
		f.mu.Unlock()
		return
	}

	h0, useH0 := f.h0, f.h0Used
	hn := f.hn
	channels := f.channels
	f.h0 = handler{}
	f.h0Used = false
	f.hn = nil
	f.channels = nil

	f.result = value
	f.state.Store(int32(Fulfilled))

	// Schedule continuations while holding the lock, so their order is
	// consistent with concurrent addHandler calls.
	if useH0 {
		f.scheduleHandler(h0, Fulfilled, value)
	}
	for _, h := range hn {
		f.scheduleHandler(h, Fulfilled, value)
	}

	for _, ch := range channels {
		ch <- value
		close(ch)
	}
	f.mu.Unlock()
}

// reject settles the future with a failure reason.
func (f *Future) reject(reason any) {
	f.mu.Lock()
	if f.state.Load() != int32(Pending) {
		f.mu.Unlock()
		return
	}

	h0, useH0 := f.h0, f.h0Used
	hn := f.hn
	channels := f.channels
	f.h0 = handler{}
	f.h0Used = false
	f.hn = nil
	f.channels = nil

	f.result = reason
	f.state.Store(int32(Rejected))

	if useH0 {
		f.scheduleHandler(h0, Rejected, reason)
	}
	for _, h := range hn {
		f.scheduleHandler(h, Rejected, reason)
	}

	for _, ch := range channels {
		ch <- reason
		close(ch)
	}
	f.mu.Unlock()

	f.loop.trackRejection(f, reason)
}

// Then registers continuations for settlement and returns a new future that
// settles with the continuation's outcome.
//
//   - onFulfilled runs with the value when this future fulfills; its return
//     value fulfills the returned future (a returned *Future is adopted).
//   - onRejected runs with the reason when this future rejects; returning
//     normally recovers, fulfilling the returned future.
//   - Either callback may be nil, in which case that branch passes through.
//   - A panicking callback rejects the returned future with [PanicError].
//
// Continuations always run as microtasks on the loop goroutine, even when
// this future is already settled.
func (f *Future) Then(onFulfilled, onRejected func(any) any) *Future {
	child := f.loop.newFuture()
	f.addHandler(handler{
		onFulfilled: onFulfilled,
		onRejected:  onRejected,
		target:      child,
	})
	return child
}

// Catch registers a rejection continuation. Equivalent to Then(nil, onRejected).
func (f *Future) Catch(onRejected func(any) any) *Future {
	return f.Then(nil, onRejected)
}

// Finally registers a callback that runs for its side effects on either
// branch, then passes the original settlement through to the returned
// future. A panic inside the callback rejects the returned future with
// [PanicError] instead.
func (f *Future) Finally(onFinally func()) *Future {
	child := f.loop.newFuture()

	if onFinally == nil {
		onFinally = func() {}
	}

	runFinally := func(res any, isRejected bool) {
		defer func() {
			if r := recover(); r != nil {
				child.reject(PanicError{Value: r})
			}
		}()
		onFinally()
		if isRejected {
			child.reject(res)
		} else {
			child.resolve(res)
		}
	}

	// No target on the handler: child is settled by runFinally so a panic
	// in the callback can override the pass-through.
	f.addHandler(handler{
		onFulfilled: func(v any) any {
			runFinally(v, false)
			return nil
		},
		onRejected: func(r any) any {
			runFinally(r, true)
			return nil
		},
	})

	return child
}

// ToChannel returns a channel that receives the settlement (value or
// reason) and is then closed. If the future is already settled the channel
// is pre-filled. This is the bridge for goroutine-side consumers and test
// harnesses; it never blocks the loop.
func (f *Future) ToChannel() <-chan any {
	ch := make(chan any, 1)

	if f.state.Load() != int32(Pending) {
		ch <- f.result
		close(ch)
		return ch
	}

	f.mu.Lock()
	if f.state.Load() != int32(Pending) {
		f.mu.Unlock()
		ch <- f.result
		close(ch)
		return ch
	}
	f.channels = append(f.channels, ch)
	f.mu.Unlock()

	return ch
}
