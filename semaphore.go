package coop

import (
	"sync"

	"github.com/eapache/queue"
)

// Semaphore bounds cooperative access to a resource with a fixed number of
// permits. Waiters are granted permits in strict FIFO request order: a
// Release hands the permit directly to the head waiter rather than
// returning it to the pool, so the available count never transiently
// exceeds the configured size.
//
// A Semaphore is bound to a single [Loop]; acquisition futures settle
// through that loop's microtask queue like any other future.
type Semaphore struct {
	loop *Loop

	mu      sync.Mutex
	waiters *queue.Queue // ResolveFunc, FIFO
	permits int
	size    int
}

// NewSemaphore creates a semaphore with the given number of permits.
func NewSemaphore(loop *Loop, permits int) *Semaphore {
	if permits < 0 {
		panic("coop: negative semaphore permits")
	}
	return &Semaphore{
		loop:    loop,
		waiters: queue.New(),
		permits: permits,
		size:    permits,
	}
}

// Acquire returns a future that fulfills once a permit is held. With a free
// permit the future fulfills on the next microtask pass; otherwise the
// caller joins the FIFO waiter queue.
func (s *Semaphore) Acquire() *Future {
	f, resolve, _ := s.loop.NewFuture()

	s.mu.Lock()
	if s.permits > 0 {
		s.permits--
		s.mu.Unlock()
		resolve(nil)
		return f
	}

	s.waiters.Add(resolve)
	depth := s.waiters.Length()
	s.mu.Unlock()

	s.loop.metricSink().SetGauge(MetricSemaphoreWaiterDepth, float32(depth))
	return f
}

// TryAcquire acquires a permit without waiting, reporting whether it
// succeeded. It never jumps the waiter queue: a free permit implies no
// waiters are queued.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permits == 0 {
		return false
	}
	s.permits--
	return true
}

// Release returns a permit. If waiters are queued the permit transfers
// directly to the head waiter and the available count is unchanged.
// Releasing more than was acquired is a programming error and panics with
// [ErrSemaphoreOverRelease].
func (s *Semaphore) Release() {
	s.mu.Lock()
	if s.waiters.Length() > 0 {
		resolve := s.waiters.Remove().(ResolveFunc)
		depth := s.waiters.Length()
		s.mu.Unlock()

		s.loop.metricSink().SetGauge(MetricSemaphoreWaiterDepth, float32(depth))
		resolve(nil)
		return
	}

	if s.permits >= s.size {
		s.mu.Unlock()
		panic(ErrSemaphoreOverRelease)
	}
	s.permits++
	s.mu.Unlock()
}

// WithLock acquires the semaphore, runs fn, and releases. The release is
// deferred, so it happens even when fn panics; the panic then rejects the
// returned future with [PanicError].
func (s *Semaphore) WithLock(fn func()) *Future {
	return s.Acquire().Then(func(any) any {
		defer s.Release()
		fn()
		return nil
	}, nil)
}

// Permits returns the number of currently free permits.
func (s *Semaphore) Permits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}

// Waiters returns the number of queued acquirers.
func (s *Semaphore) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Length()
}
