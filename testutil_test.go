package coop

import (
	"context"
	"testing"
	"time"
)

const testTimeout = 5 * time.Second

// newTestLoop starts a loop on a background goroutine and tears it down
// with the test.
func newTestLoop(t *testing.T, opts ...LoopOption) *Loop {
	t.Helper()

	l, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-l.Done():
		case <-time.After(testTimeout):
			t.Error("loop did not terminate")
		}
	})

	return l
}

// await blocks until f settles and returns its settlement (value or
// reason). Check f.State afterwards to tell the two apart.
func await(t *testing.T, f *Future) any {
	t.Helper()
	select {
	case v := <-f.ToChannel():
		return v
	case <-time.After(testTimeout):
		t.Fatalf("timed out awaiting future")
		return nil
	}
}

// awaitValue asserts fulfillment and returns the value.
func awaitValue(t *testing.T, f *Future) any {
	t.Helper()
	v := await(t, f)
	if got := f.State(); got != Fulfilled {
		t.Fatalf("future state = %v (settlement %v), want Fulfilled", got, v)
	}
	return v
}

// awaitReason asserts rejection and returns the reason.
func awaitReason(t *testing.T, f *Future) any {
	t.Helper()
	v := await(t, f)
	if got := f.State(); got != Rejected {
		t.Fatalf("future state = %v (settlement %v), want Rejected", got, v)
	}
	return v
}

// settleBarrier queues a macrotask and waits for it to run, ensuring all
// previously queued work (and the microtasks it spawned) has finished.
func settleBarrier(t *testing.T, l *Loop) {
	t.Helper()
	done := make(chan struct{})
	if err := l.QueueMacrotask(func() { close(done) }); err != nil {
		t.Fatalf("QueueMacrotask: %v", err)
	}
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatalf("timed out waiting for loop barrier")
	}
}
