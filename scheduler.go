package coop

import (
	"container/heap"
	"sync"
)

// TaskFunc is a unit of work submitted to a [Scheduler]. A non-nil error
// rejects the task's future; a returned [*Future] is adopted, so the
// task's future tracks it.
type TaskFunc func() (any, error)

type task struct {
	fn       TaskFunc
	priority int
	seq      uint64
	resolve  ResolveFunc
	reject   RejectFunc
}

// taskHeap orders by priority descending, then submission order ascending
// so equal priorities run FIFO.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler runs submitted tasks on the loop with a bounded number in
// flight. Tasks dispatch highest-priority first; ties run in submission
// order. A task failure settles only that task's future and never stalls
// the scheduler.
type Scheduler struct {
	loop *Loop

	mu          sync.Mutex
	pending     taskHeap
	concurrency int
	running     int
	seq         uint64
	paused      bool
	passQueued  bool
}

// NewScheduler creates a scheduler dispatching at most concurrency tasks
// at once. Values below 1 are treated as 1.
func NewScheduler(loop *Loop, concurrency int) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{loop: loop, concurrency: concurrency}
}

// Submit enqueues fn at the given priority (higher runs first) and returns
// a future settled by the task's outcome.
func (s *Scheduler) Submit(fn TaskFunc, priority int) *Future {
	f, resolve, reject := s.loop.NewFuture()

	s.mu.Lock()
	t := &task{fn: fn, priority: priority, seq: s.seq, resolve: resolve, reject: reject}
	s.seq++
	heap.Push(&s.pending, t)
	s.loop.metricSink().SetGauge(MetricSchedulerPendingSize, float32(s.pending.Len()))
	s.mu.Unlock()

	s.schedulePass()
	return f
}

// schedulePass queues a single dispatch pass as a microtask, coalescing
// concurrent triggers.
func (s *Scheduler) schedulePass() {
	s.mu.Lock()
	if s.passQueued {
		s.mu.Unlock()
		return
	}
	s.passQueued = true
	s.mu.Unlock()

	if err := s.loop.QueueMicrotask(s.pass); err != nil {
		s.mu.Lock()
		s.passQueued = false
		var pending []*task
		for s.pending.Len() > 0 {
			pending = append(pending, heap.Pop(&s.pending).(*task))
		}
		s.mu.Unlock()
		for _, t := range pending {
			t.reject(ErrSchedulerStopped)
		}
	}
}

func (s *Scheduler) pass() {
	for {
		s.mu.Lock()
		if s.paused || s.running >= s.concurrency || s.pending.Len() == 0 {
			s.passQueued = false
			s.mu.Unlock()
			return
		}
		t := heap.Pop(&s.pending).(*task)
		s.running++
		s.loop.metricSink().SetGauge(MetricSchedulerPendingSize, float32(s.pending.Len()))
		s.mu.Unlock()

		s.runTask(t)
	}
}

func (s *Scheduler) runTask(t *task) {
	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = PanicError{Value: r}
			}
		}()
		result, err = t.fn()
	}()

	if err != nil {
		s.fail(t, err)
		return
	}
	if f, ok := result.(*Future); ok {
		f.Then(
			func(v any) any { s.complete(t, v); return nil },
			// The reason passes through untouched, error or not.
			func(reason any) any { s.fail(t, reason); return nil },
		)
		return
	}
	s.complete(t, result)
}

func (s *Scheduler) complete(t *task, v any) {
	s.release()
	s.loop.metricSink().IncrCounter(MetricSchedulerCompleted, 1)
	t.resolve(v)
	s.schedulePass()
}

func (s *Scheduler) fail(t *task, reason any) {
	s.release()
	s.loop.metricSink().IncrCounter(MetricSchedulerFailed, 1)
	t.reject(reason)
	s.schedulePass()
}

// release returns the task's concurrency slot.
func (s *Scheduler) release() {
	s.mu.Lock()
	s.running--
	s.mu.Unlock()
}

// Pause stops dispatching new tasks; in-flight tasks run to completion.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume re-enables dispatch and triggers a pass over the pending queue.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.schedulePass()
}

// Running returns the number of tasks currently in flight.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pending returns the number of tasks waiting to dispatch.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}
