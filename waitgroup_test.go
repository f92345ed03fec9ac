package coop

import "testing"

func TestWaitGroupWait(t *testing.T) {
	l := newTestLoop(t)
	wg := NewWaitGroup(l)

	wg.Add(2)
	f := wg.Wait()
	if got := f.State(); got != Pending {
		t.Fatalf("wait state = %v, want Pending", got)
	}

	wg.Done()
	settleBarrier(t, l)
	if got := f.State(); got != Pending {
		t.Fatalf("wait state after partial Done = %v, want Pending", got)
	}

	wg.Done()
	awaitValue(t, f)
}

func TestWaitGroupWaitOnZero(t *testing.T) {
	l := newTestLoop(t)
	wg := NewWaitGroup(l)

	awaitValue(t, wg.Wait())
}

func TestWaitGroupReuse(t *testing.T) {
	l := newTestLoop(t)
	wg := NewWaitGroup(l)

	wg.Add(1)
	first := wg.Wait()
	wg.Done()
	awaitValue(t, first)

	wg.Add(1)
	second := wg.Wait()
	if got := second.State(); got != Pending {
		t.Fatalf("wait state after re-Add = %v, want Pending", got)
	}
	wg.Done()
	awaitValue(t, second)
}

func TestWaitGroupNegativeCounterPanics(t *testing.T) {
	l := newTestLoop(t)
	wg := NewWaitGroup(l)

	defer func() {
		if recover() == nil {
			t.Fatal("negative counter did not panic")
		}
	}()
	wg.Done()
}
