// Package coop provides a single-threaded cooperative concurrency runtime
// for Go, built from a settle-once [Future] with Promise-style chaining, a
// two-queue (microtask/macrotask) event [Loop], CSP-style [Semaphore] and
// [Channel] primitives, and a priority-ordered, concurrency-capped
// [Scheduler].
//
// # Architecture
//
// Everything is driven by a [Loop] instance constructed by the caller; there
// is no process-wide singleton. Futures are created through the loop
// ([Loop.NewFuture]) directly or indirectly via [Scheduler.Submit],
// [Channel.Send], [Channel.Receive], and [Semaphore.Acquire]. Continuations
// registered with [Future.Then], [Future.Catch], and [Future.Finally] are
// always executed as microtasks on the loop goroutine, never synchronously
// from the registering call.
//
// # Execution Model
//
// Each loop tick:
//  1. Expired delayed callbacks move onto the macrotask queue.
//  2. The microtask queue is drained completely, including microtasks
//     enqueued while draining.
//  3. At most one macrotask runs.
//  4. Microtasks are drained again before the loop sleeps or re-arms.
//
// The loop never starts a macrotask while a microtask is pending, which is
// the primary ordering guarantee of the package.
//
// Concurrency is cooperative interleaving, not parallelism: callbacks run to
// completion on the loop goroutine, and component state (queues, buffers,
// counters) is only mutated from within the owning component's methods.
//
// # Thread Safety
//
// Producer-side entry points ([Loop.QueueMicrotask], [Loop.QueueMacrotask],
// resolve/reject functions, [Scheduler.Submit], and so on) are safe to call
// from any goroutine. Results can be consumed from other goroutines via
// [Future.ToChannel].
//
// # Usage
//
//	loop, err := coop.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	go loop.Run(ctx)
//
//	sched := coop.NewScheduler(loop, 4)
//	f := sched.Submit(func() (any, error) {
//	    return fetchSomething()
//	}, 10)
//	result := <-f.ToChannel()
package coop
