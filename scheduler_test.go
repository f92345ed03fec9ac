package coop

import (
	"errors"
	"reflect"
	"testing"
)

func TestSchedulerPriorityOrder(t *testing.T) {
	l := newTestLoop(t)
	s := NewScheduler(l, 1)

	var order []int
	var futures []*Future

	// Submit as one batch so dispatch sees the full set.
	done := make(chan struct{})
	if err := l.QueueMacrotask(func() {
		for _, p := range []int{0, 10, 5} {
			p := p
			futures = append(futures, s.Submit(func() (any, error) {
				order = append(order, p)
				return p, nil
			}, p))
		}
		close(done)
	}); err != nil {
		t.Fatalf("QueueMacrotask: %v", err)
	}
	<-done

	for _, f := range futures {
		awaitValue(t, f)
	}

	if want := []int{10, 5, 0}; !reflect.DeepEqual(order, want) {
		t.Fatalf("execution order = %v, want %v", order, want)
	}
}

func TestSchedulerEqualPriorityFIFO(t *testing.T) {
	l := newTestLoop(t)
	s := NewScheduler(l, 1)

	var order []string
	var futures []*Future

	done := make(chan struct{})
	if err := l.QueueMacrotask(func() {
		for _, name := range []string{"a", "b", "c"} {
			name := name
			futures = append(futures, s.Submit(func() (any, error) {
				order = append(order, name)
				return nil, nil
			}, 7))
		}
		close(done)
	}); err != nil {
		t.Fatalf("QueueMacrotask: %v", err)
	}
	<-done

	for _, f := range futures {
		awaitValue(t, f)
	}

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("execution order = %v, want %v", order, want)
	}
}

func TestSchedulerFailureIsolation(t *testing.T) {
	l := newTestLoop(t)
	s := NewScheduler(l, 1)

	boom := errors.New("task failed")
	bad := s.Submit(func() (any, error) { return nil, boom }, 0)
	bad.Catch(func(any) any { return nil })
	good := s.Submit(func() (any, error) { return "fine", nil }, 0)

	if r := awaitReason(t, bad); r != boom {
		t.Fatalf("reason = %v, want %v", r, boom)
	}
	if v := awaitValue(t, good); v != "fine" {
		t.Fatalf("value = %v, want fine", v)
	}
}

func TestSchedulerPanicIsolation(t *testing.T) {
	l := newTestLoop(t)
	s := NewScheduler(l, 1)

	bad := s.Submit(func() (any, error) { panic("task exploded") }, 0)
	bad.Catch(func(any) any { return nil })

	r := awaitReason(t, bad)
	var pe PanicError
	if !errors.As(errorValue(r), &pe) {
		t.Fatalf("reason = %#v, want PanicError", r)
	}

	// The scheduler keeps dispatching.
	if v := awaitValue(t, s.Submit(func() (any, error) { return 1, nil }, 0)); v != 1 {
		t.Fatalf("value = %v, want 1", v)
	}
}

func TestSchedulerConcurrencyLimit(t *testing.T) {
	l := newTestLoop(t)
	s := NewScheduler(l, 1)

	var order []string
	gate, openGate, _ := l.NewFuture()

	first := s.Submit(func() (any, error) {
		order = append(order, "first-start")
		// Holding an unsettled future keeps the slot occupied.
		return gate.Then(func(any) any { order = append(order, "first-end"); return nil }, nil), nil
	}, 0)
	second := s.Submit(func() (any, error) {
		order = append(order, "second")
		return nil, nil
	}, 0)

	settleBarrier(t, l)
	if got := s.Running(); got != 1 {
		t.Fatalf("running = %d, want 1", got)
	}
	if got := s.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	openGate(nil)
	awaitValue(t, first)
	awaitValue(t, second)

	want := []string{"first-start", "first-end", "second"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestSchedulerFutureResult(t *testing.T) {
	l := newTestLoop(t)
	s := NewScheduler(l, 2)

	f := s.Submit(func() (any, error) {
		return l.Resolved("inner"), nil
	}, 0)

	if v := awaitValue(t, f); v != "inner" {
		t.Fatalf("value = %v, want inner", v)
	}

	boom := errors.New("inner failure")
	g := s.Submit(func() (any, error) {
		return l.Rejected(boom), nil
	}, 0)
	g.Catch(func(any) any { return nil })

	if r := awaitReason(t, g); r != boom {
		t.Fatalf("reason = %v, want %v", r, boom)
	}

	// Non-error reasons survive adoption unwrapped.
	h := s.Submit(func() (any, error) {
		return l.Rejected("plain reason"), nil
	}, 0)
	h.Catch(func(any) any { return nil })

	if r := awaitReason(t, h); r != "plain reason" {
		t.Fatalf("reason = %v (%T), want plain reason unmodified", r, r)
	}
}

func TestSchedulerPauseResume(t *testing.T) {
	l := newTestLoop(t)
	s := NewScheduler(l, 1)

	s.Pause()

	ran := false
	f := s.Submit(func() (any, error) { ran = true; return nil, nil }, 0)

	settleBarrier(t, l)
	if ran {
		t.Fatal("task dispatched while paused")
	}
	if got := s.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	s.Resume()
	awaitValue(t, f)
	if !ran {
		t.Fatal("task did not run after Resume")
	}
}

func TestSchedulerConcurrencyClamped(t *testing.T) {
	l := newTestLoop(t)
	s := NewScheduler(l, 0)

	if v := awaitValue(t, s.Submit(func() (any, error) { return "ok", nil }, 0)); v != "ok" {
		t.Fatalf("value = %v, want ok", v)
	}
}
