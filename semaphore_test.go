package coop

import (
	"reflect"
	"testing"
)

func TestSemaphoreAcquireRelease(t *testing.T) {
	l := newTestLoop(t)
	s := NewSemaphore(l, 2)

	awaitValue(t, s.Acquire())
	awaitValue(t, s.Acquire())
	if got := s.Permits(); got != 0 {
		t.Fatalf("permits = %d, want 0", got)
	}

	s.Release()
	if got := s.Permits(); got != 1 {
		t.Fatalf("permits after release = %d, want 1", got)
	}
}

func TestSemaphoreFIFOFairness(t *testing.T) {
	l := newTestLoop(t)
	s := NewSemaphore(l, 1)

	awaitValue(t, s.Acquire())

	// Three waiters queue behind the holder; releases must serve them in
	// arrival order.
	var order []string
	a := s.Acquire().Then(func(any) any { order = append(order, "a"); return nil }, nil)
	b := s.Acquire().Then(func(any) any { order = append(order, "b"); return nil }, nil)
	c := s.Acquire().Then(func(any) any { order = append(order, "c"); return nil }, nil)

	if got := s.Waiters(); got != 3 {
		t.Fatalf("waiters = %d, want 3", got)
	}

	s.Release()
	awaitValue(t, a)
	s.Release()
	awaitValue(t, b)
	s.Release()
	awaitValue(t, c)

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestSemaphoreTryAcquire(t *testing.T) {
	l := newTestLoop(t)
	s := NewSemaphore(l, 1)

	if !s.TryAcquire() {
		t.Fatal("TryAcquire on free semaphore = false")
	}
	if s.TryAcquire() {
		t.Fatal("TryAcquire on exhausted semaphore = true")
	}
	s.Release()
	if !s.TryAcquire() {
		t.Fatal("TryAcquire after release = false")
	}
}

func TestSemaphoreOverReleasePanics(t *testing.T) {
	l := newTestLoop(t)
	s := NewSemaphore(l, 1)

	defer func() {
		if recover() == nil {
			t.Fatal("over-release did not panic")
		}
	}()
	s.Release()
}

func TestSemaphoreWithLock(t *testing.T) {
	l := newTestLoop(t)
	s := NewSemaphore(l, 1)

	ran := false
	awaitValue(t, s.WithLock(func() { ran = true }))

	if !ran {
		t.Fatal("critical section did not run")
	}
	if got := s.Permits(); got != 1 {
		t.Fatalf("permits after WithLock = %d, want 1 (permit not returned)", got)
	}
}

func TestSemaphoreWithLockReleasesOnPanic(t *testing.T) {
	l := newTestLoop(t)
	s := NewSemaphore(l, 1)

	f := s.WithLock(func() { panic("crit section exploded") })
	f.Catch(func(any) any { return nil })
	awaitReason(t, f)

	// The permit must be back despite the panic.
	if got := s.Permits(); got != 1 {
		t.Fatalf("permits after panicking WithLock = %d, want 1", got)
	}
}

func TestSemaphoreNegativePermitsPanics(t *testing.T) {
	l := newTestLoop(t)

	defer func() {
		if recover() == nil {
			t.Fatal("negative permit count did not panic")
		}
	}()
	NewSemaphore(l, -1)
}
