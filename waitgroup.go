package coop

import "sync"

// WaitGroup tracks a counter of outstanding work and settles waiters once
// it reaches zero, like [sync.WaitGroup] expressed over futures. Wait
// futures created while the counter is zero fulfill immediately.
type WaitGroup struct {
	loop *Loop

	mu       sync.Mutex
	count    int
	resolves []ResolveFunc
}

// NewWaitGroup creates a wait group bound to the loop.
func NewWaitGroup(loop *Loop) *WaitGroup {
	return &WaitGroup{loop: loop}
}

// Add adjusts the counter by delta, which may be negative. A counter
// falling below zero panics.
func (wg *WaitGroup) Add(delta int) {
	wg.mu.Lock()
	wg.count += delta
	if wg.count < 0 {
		wg.mu.Unlock()
		panic("coop: negative WaitGroup counter")
	}
	var resolves []ResolveFunc
	if wg.count == 0 {
		resolves = wg.resolves
		wg.resolves = nil
	}
	wg.mu.Unlock()

	for _, resolve := range resolves {
		resolve(nil)
	}
}

// Done decrements the counter by one.
func (wg *WaitGroup) Done() { wg.Add(-1) }

// Wait returns a future that fulfills with nil once the counter reaches
// zero.
func (wg *WaitGroup) Wait() *Future {
	wg.mu.Lock()
	if wg.count == 0 {
		wg.mu.Unlock()
		return wg.loop.Resolved(nil)
	}
	f, resolve, _ := wg.loop.NewFuture()
	wg.resolves = append(wg.resolves, resolve)
	wg.mu.Unlock()
	return f
}
