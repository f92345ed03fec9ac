package coop

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/hashicorp/go-metrics"
	"github.com/joeycumines/logiface"
)

// Loop is the cooperative two-queue event loop driving the runtime.
//
// A Loop owns a microtask queue and a macrotask queue. Each tick fully
// drains microtasks (including microtasks queued while draining), executes
// at most one macrotask, drains microtasks again, and then sleeps until new
// work arrives or the earliest delayed callback comes due. Two macrotasks
// are never executed without a complete microtask drain in between.
//
// Construct with [New], start with [Loop.Run] (usually on a dedicated
// goroutine), and stop with [Loop.Shutdown] or [Loop.Close].
type Loop struct {
	// Prevent copying
	_ [0]func()

	state *loopState

	log  *logiface.Logger[logiface.Event]
	sink metrics.MetricSink

	// Host hooks.
	scheduleAfter ScheduleAfterFunc
	onUnhandled   RejectionHandler

	// Task queues. eapache/queue rings guarded by their mutexes; producers
	// may enqueue from any goroutine, only the loop goroutine dequeues.
	microMu sync.Mutex
	micro   *queue.Queue
	macroMu sync.Mutex
	macro   *queue.Queue

	// Delayed macrotasks (only used when no scheduleAfter hook is set).
	timersMu sync.Mutex
	timers   timerHeap

	// Unhandled rejection tracking.
	rejMu      sync.Mutex
	rejections []*rejectionEntry

	// Wake-up signal for the sleeping loop. Buffered so a single pending
	// wake is retained across the park race.
	wakeCh chan struct{}

	// Timing. tickAnchor is fixed at construction; tickElapsed advances
	// every tick.
	tickAnchor  time.Time
	tickElapsed atomic.Int64

	loopGoroutineID atomic.Uint64
	nextFutureID    atomic.Uint64

	// immediate is set by Close to skip the graceful drain.
	immediate atomic.Bool

	loopDone chan struct{}
	id       uint64
}

// timerEntry is a delayed macrotask waiting to come due.
type timerEntry struct {
	when time.Time
	fn   func()
}

// timerHeap is a min-heap of timer entries ordered by due time.
type timerHeap []timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// rejectionEntry tracks a rejected future awaiting a handler.
type rejectionEntry struct {
	f      *Future
	reason any
	seen   bool
}

var loopIDCounter atomic.Uint64

// New creates a new event loop.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Loop{
		id:            loopIDCounter.Add(1),
		tickAnchor:    time.Now(),
		state:         newLoopState(),
		log:           cfg.logger,
		sink:          cfg.sink,
		scheduleAfter: cfg.scheduleAfter,
		onUnhandled:   cfg.onUnhandled,
		micro:         queue.New(),
		macro:         queue.New(),
		timers:        make(timerHeap, 0),
		wakeCh:        make(chan struct{}, 1),
		loopDone:      make(chan struct{}),
	}, nil
}

// Run runs the event loop and blocks until fully stopped.
//
// Run returns when the loop terminates via [Loop.Shutdown], [Loop.Close],
// or ctx cancellation. Cancelling ctx stops the loop without draining
// queued work; use [Loop.Shutdown] for a graceful stop. To drive the loop
// in the background, use `go loop.Run(ctx)`.
func (l *Loop) Run(ctx context.Context) error {
	if l.isLoopThread() {
		return ErrReentrantRun
	}

	if !l.state.TryTransition(StateAwake, StateRunning) {
		if l.state.Load() == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	defer close(l.loopDone)

	l.tickElapsed.Store(int64(time.Since(l.tickAnchor)))

	return l.run(ctx)
}

// run is the loop goroutine body.
func (l *Loop) run(ctx context.Context) error {
	l.loopGoroutineID.Store(goroutineID())
	defer l.loopGoroutineID.Store(0)

	l.logState(StateRunning, "coop: loop running")

	for {
		select {
		case <-ctx.Done():
			// Cancellation is an abort, not a graceful stop: skip the
			// drain so a self-re-queuing callback cannot pin the loop.
			l.immediate.Store(true)
			for {
				cur := l.state.Load()
				if cur == StateTerminating || cur == StateTerminated {
					break
				}
				if l.state.TryTransition(cur, StateTerminating) {
					break
				}
			}
			l.finish()
			return ctx.Err()
		default:
		}

		if s := l.state.Load(); s == StateTerminating || s == StateTerminated {
			l.finish()
			return nil
		}

		l.tick(ctx)
	}
}

// tick is a single iteration of the event loop.
func (l *Loop) tick(ctx context.Context) {
	l.tickElapsed.Store(int64(time.Since(l.tickAnchor)))

	// Expired delayed callbacks become macrotasks.
	l.runDueTimers()

	// Full microtask drain before any macrotask may run.
	l.drainMicrotasks()
	l.checkUnhandledRejections()

	// At most one macrotask per tick.
	if fn, ok := l.popMacrotask(); ok {
		l.safeExecute("macrotask", fn)
		l.sink.IncrCounter(MetricLoopMacrotaskCount, 1)
	}

	l.drainMicrotasks()
	l.checkUnhandledRejections()

	l.reportQueueDepths()

	if !l.hasImmediateWork() {
		l.park(ctx)
	}
}

// park blocks the loop until woken, the next timer comes due, or ctx ends.
func (l *Loop) park(ctx context.Context) {
	if !l.state.TryTransition(StateRunning, StateSleeping) {
		return
	}

	// Re-check after publishing the sleeping state: a producer that observed
	// StateRunning may have enqueued without sending a wake.
	if l.hasImmediateWork() {
		l.state.TryTransition(StateSleeping, StateRunning)
		return
	}

	var timerC <-chan time.Time
	var tm *time.Timer
	if d, ok := l.nextTimerDelay(); ok {
		tm = time.NewTimer(d)
		timerC = tm.C
	}

	select {
	case <-l.wakeCh:
	case <-timerC:
	case <-ctx.Done():
	}

	if tm != nil {
		tm.Stop()
	}

	l.state.TryTransition(StateSleeping, StateRunning)
}

// finish drains remaining work (unless Close requested an immediate stop)
// and moves the loop to its terminal state.
func (l *Loop) finish() {
	if !l.immediate.Load() {
		for {
			l.drainMicrotasks()
			fn, ok := l.popMacrotask()
			if !ok {
				break
			}
			l.safeExecute("macrotask", fn)
			l.sink.IncrCounter(MetricLoopMacrotaskCount, 1)
		}
		l.drainMicrotasks()
		l.checkUnhandledRejections()
	}

	l.state.Store(StateTerminated)
	l.logState(StateTerminated, "coop: loop terminated")
}

// Shutdown gracefully shuts down the event loop.
//
// All currently queued microtasks and macrotasks run to completion; delayed
// callbacks that have not come due are dropped. Shutdown blocks until
// termination completes or ctx expires. Shutting down a loop that never ran
// terminates it immediately.
func (l *Loop) Shutdown(ctx context.Context) error {
	for {
		cur := l.state.Load()
		switch cur {
		case StateTerminated:
			return ErrLoopTerminated
		case StateTerminating:
			// Another shutdown is in flight; wait alongside it.
			select {
			case <-l.loopDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		case StateAwake:
			// Never ran: Run's deferred close will not happen, so release
			// Done waiters here.
			if l.state.TryTransition(StateAwake, StateTerminated) {
				close(l.loopDone)
				l.logState(StateTerminated, "coop: loop terminated before run")
				return nil
			}
		default:
			if l.state.TryTransition(cur, StateTerminating) {
				l.wake()
				select {
				case <-l.loopDone:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// Close immediately terminates the event loop without draining queued work.
func (l *Loop) Close() error {
	l.immediate.Store(true)
	for {
		cur := l.state.Load()
		switch cur {
		case StateTerminated:
			return ErrLoopTerminated
		case StateTerminating:
			return nil
		case StateAwake:
			if l.state.TryTransition(StateAwake, StateTerminated) {
				close(l.loopDone)
				return nil
			}
		default:
			if l.state.TryTransition(cur, StateTerminating) {
				l.wake()
				return nil
			}
		}
	}
}

// Done returns a channel closed when the loop has fully stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.loopDone
}

// State returns the current loop state.
func (l *Loop) State() LoopState {
	return l.state.Load()
}

// QueueMicrotask schedules fn on the microtask queue. Microtasks run before
// the next macrotask, in FIFO order; a microtask queued while draining is
// drained in the same pass.
func (l *Loop) QueueMicrotask(fn func()) error {
	if fn == nil {
		return nil
	}
	if !l.state.CanAcceptWork() {
		return ErrLoopTerminated
	}

	l.microMu.Lock()
	l.micro.Add(fn)
	l.microMu.Unlock()

	l.wake()
	return nil
}

// QueueMacrotask schedules fn on the macrotask queue. Exactly one macrotask
// runs per loop pass, after a full microtask drain.
func (l *Loop) QueueMacrotask(fn func()) error {
	if fn == nil {
		return nil
	}
	if !l.state.CanAcceptWork() {
		return ErrLoopTerminated
	}

	l.macroMu.Lock()
	l.macro.Add(fn)
	l.macroMu.Unlock()

	l.wake()
	return nil
}

// QueueMacrotaskAfter schedules fn on the macrotask queue once delay has
// elapsed. A delay of zero (or less) means "as soon as possible, but never
// synchronously": the callback still waits for its own loop pass.
func (l *Loop) QueueMacrotaskAfter(fn func(), delay time.Duration) error {
	if fn == nil {
		return nil
	}
	if delay <= 0 {
		return l.QueueMacrotask(fn)
	}
	if !l.state.CanAcceptWork() {
		return ErrLoopTerminated
	}

	if l.scheduleAfter != nil {
		l.scheduleAfter(delay, func() {
			_ = l.QueueMacrotask(fn)
		})
		return nil
	}

	l.timersMu.Lock()
	heap.Push(&l.timers, timerEntry{when: time.Now().Add(delay), fn: fn})
	l.timersMu.Unlock()

	l.wake()
	return nil
}

// Now returns the loop's cached monotonic time, refreshed once per tick.
// Between ticks (and before Run) it lags the wall clock by at most one
// park interval; callbacks within a tick observe a stable instant.
func (l *Loop) Now() time.Time {
	return l.tickAnchor.Add(time.Duration(l.tickElapsed.Load()))
}

// wake nudges a sleeping loop. A single pending wake is retained; extra
// signals coalesce.
func (l *Loop) wake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// runDueTimers moves expired timer entries onto the macrotask queue.
func (l *Loop) runDueTimers() {
	now := l.Now()
	for {
		l.timersMu.Lock()
		if len(l.timers) == 0 || l.timers[0].when.After(now) {
			l.timersMu.Unlock()
			return
		}
		e := heap.Pop(&l.timers).(timerEntry)
		l.timersMu.Unlock()

		l.macroMu.Lock()
		l.macro.Add(e.fn)
		l.macroMu.Unlock()
	}
}

// nextTimerDelay returns the delay until the earliest pending timer.
func (l *Loop) nextTimerDelay() (time.Duration, bool) {
	l.timersMu.Lock()
	defer l.timersMu.Unlock()
	if len(l.timers) == 0 {
		return 0, false
	}
	d := l.timers[0].when.Sub(l.Now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// drainMicrotasks pops and runs microtasks until the queue is empty,
// including microtasks enqueued by the microtasks being drained.
func (l *Loop) drainMicrotasks() {
	for {
		l.microMu.Lock()
		if l.micro.Length() == 0 {
			l.microMu.Unlock()
			return
		}
		fn := l.micro.Remove().(func())
		l.microMu.Unlock()

		l.safeExecute("microtask", fn)
		l.sink.IncrCounter(MetricLoopMicrotaskCount, 1)
	}
}

// popMacrotask dequeues a single macrotask, if any.
func (l *Loop) popMacrotask() (func(), bool) {
	l.macroMu.Lock()
	defer l.macroMu.Unlock()
	if l.macro.Length() == 0 {
		return nil, false
	}
	return l.macro.Remove().(func()), true
}

// hasImmediateWork reports whether a queue entry or due timer is ready.
func (l *Loop) hasImmediateWork() bool {
	l.microMu.Lock()
	n := l.micro.Length()
	l.microMu.Unlock()
	if n > 0 {
		return true
	}

	l.macroMu.Lock()
	n = l.macro.Length()
	l.macroMu.Unlock()
	if n > 0 {
		return true
	}

	l.timersMu.Lock()
	defer l.timersMu.Unlock()
	return len(l.timers) > 0 && !l.timers[0].when.After(l.Now())
}

// reportQueueDepths emits queue depth gauges.
func (l *Loop) reportQueueDepths() {
	l.microMu.Lock()
	micro := l.micro.Length()
	l.microMu.Unlock()
	l.macroMu.Lock()
	macro := l.macro.Length()
	l.macroMu.Unlock()

	l.sink.SetGauge(MetricLoopMicroQueueDepth, float32(micro))
	l.sink.SetGauge(MetricLoopMacroQueueDepth, float32(macro))
}

// safeExecute runs a callback with panic recovery. A panicking callback is
// logged and counted; it never takes down the loop.
func (l *Loop) safeExecute(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.sink.IncrCounter(MetricLoopPanicCount, 1)
			l.logPanic(kind, r)
		}
	}()

	fn()
}

// trackRejection registers a rejected future for unhandled-rejection
// detection. Entries survive one full microtask drain before being
// reported, giving late handlers a chance to attach.
func (l *Loop) trackRejection(f *Future, reason any) {
	l.rejMu.Lock()
	l.rejections = append(l.rejections, &rejectionEntry{f: f, reason: reason})
	l.rejMu.Unlock()
	l.wake()
}

// checkUnhandledRejections runs after each full microtask drain on the loop
// goroutine.
func (l *Loop) checkUnhandledRejections() {
	l.rejMu.Lock()
	if len(l.rejections) == 0 {
		l.rejMu.Unlock()
		return
	}

	var report []*rejectionEntry
	kept := l.rejections[:0]
	for _, e := range l.rejections {
		switch {
		case e.f.handled.Load():
			// A handler attached; nothing to report.
		case e.seen:
			report = append(report, e)
		default:
			e.seen = true
			kept = append(kept, e)
		}
	}
	l.rejections = kept
	l.rejMu.Unlock()

	for _, e := range report {
		l.sink.IncrCounter(MetricUnhandledRejections, 1)
		l.logUnhandledRejection(e.f.id, e.reason)
		if l.onUnhandled != nil {
			l.onUnhandled(e.reason)
		}
	}
}

// isLoopThread checks if the caller is on the loop goroutine.
func (l *Loop) isLoopThread() bool {
	loopID := l.loopGoroutineID.Load()
	if loopID == 0 {
		return false
	}
	return goroutineID() == loopID
}

// goroutineID returns the current goroutine's ID.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
