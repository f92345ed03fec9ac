package coop

import (
	"sync"
	"sync/atomic"
)

// SettledStatus labels one outcome in an [Loop.AllSettled] result.
type SettledStatus string

const (
	// SettledFulfilled marks an input future that fulfilled.
	SettledFulfilled SettledStatus = "fulfilled"
	// SettledRejected marks an input future that rejected.
	SettledRejected SettledStatus = "rejected"
)

// SettledResult is one per-input record in an [Loop.AllSettled] resolution.
// Value is set for fulfilled inputs, Reason for rejected ones.
type SettledResult struct {
	Value  any
	Reason any
	Status SettledStatus
}

// All returns a future that fulfills with a []any of every input's value,
// in input order, once all inputs fulfill.
//
//   - An empty input fulfills immediately with an empty slice.
//   - The first rejection rejects the result with that reason; remaining
//     inputs are not cancelled, merely ignored.
func (l *Loop) All(futures []*Future) *Future {
	result, resolve, reject := l.NewFuture()

	if len(futures) == 0 {
		resolve(make([]any, 0))
		return result
	}

	var mu sync.Mutex
	var completed atomic.Int32
	var rejected atomic.Bool
	values := make([]any, len(futures))

	for i, f := range futures {
		idx := i
		f.Then(
			func(v any) any {
				mu.Lock()
				values[idx] = v
				mu.Unlock()

				if completed.Add(1) == int32(len(futures)) && !rejected.Load() {
					resolve(values)
				}
				return nil
			},
			func(r any) any {
				if rejected.CompareAndSwap(false, true) {
					reject(r)
				}
				return nil
			},
		)
	}

	return result
}

// Race returns a future that settles the same way as whichever input
// settles first. An empty input never settles.
func (l *Loop) Race(futures []*Future) *Future {
	result, resolve, reject := l.NewFuture()

	var settled atomic.Bool

	for _, f := range futures {
		f.Then(
			func(v any) any {
				if settled.CompareAndSwap(false, true) {
					resolve(v)
				}
				return nil
			},
			func(r any) any {
				if settled.CompareAndSwap(false, true) {
					reject(r)
				}
				return nil
			},
		)
	}

	return result
}

// AllSettled returns a future that fulfills once every input has settled,
// with a []SettledResult in input order. It never rejects.
func (l *Loop) AllSettled(futures []*Future) *Future {
	result, resolve, _ := l.NewFuture()

	if len(futures) == 0 {
		resolve(make([]SettledResult, 0))
		return result
	}

	var mu sync.Mutex
	var completed atomic.Int32
	records := make([]SettledResult, len(futures))

	settle := func() {
		if completed.Add(1) == int32(len(futures)) {
			resolve(records)
		}
	}

	for i, f := range futures {
		idx := i
		f.Then(
			func(v any) any {
				mu.Lock()
				records[idx] = SettledResult{Status: SettledFulfilled, Value: v}
				mu.Unlock()
				settle()
				return nil
			},
			func(r any) any {
				mu.Lock()
				records[idx] = SettledResult{Status: SettledRejected, Reason: r}
				mu.Unlock()
				settle()
				return nil
			},
		)
	}

	return result
}

// Any returns a future that fulfills with the first input to fulfill, and
// rejects with an [AggregateError] only when every input rejects. An empty
// input rejects immediately.
func (l *Loop) Any(futures []*Future) *Future {
	result, resolve, reject := l.NewFuture()

	if len(futures) == 0 {
		reject(&AggregateError{Message: "coop: no futures were provided"})
		return result
	}

	var mu sync.Mutex
	var rejectedCount atomic.Int32
	var fulfilled atomic.Bool
	reasons := make([]any, len(futures))

	for i, f := range futures {
		idx := i
		f.Then(
			func(v any) any {
				if fulfilled.CompareAndSwap(false, true) {
					resolve(v)
				}
				return nil
			},
			func(r any) any {
				mu.Lock()
				reasons[idx] = r
				mu.Unlock()

				if rejectedCount.Add(1) == int32(len(futures)) && !fulfilled.Load() {
					errs := make([]error, len(reasons))
					for j, reason := range reasons {
						errs[j] = errorValue(reason)
					}
					reject(&AggregateError{Errors: errs})
				}
				return nil
			},
		)
	}

	return result
}
