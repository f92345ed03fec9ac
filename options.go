package coop

import (
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/joeycumines/logiface"
)

// ScheduleAfterFunc is the host clock primitive: it must invoke fire after
// roughly d has elapsed, and never synchronously, even for d == 0.
type ScheduleAfterFunc func(d time.Duration, fire func())

// RejectionHandler is invoked when a rejected future still has no rejection
// handler after the microtask queue has been given a full drain to attach
// one. The handler runs on the loop goroutine.
type RejectionHandler func(reason any)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger        *logiface.Logger[logiface.Event]
	sink          metrics.MetricSink
	scheduleAfter ScheduleAfterFunc
	onUnhandled   RejectionHandler
}

// LoopOption configures a [Loop] instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithLogger attaches a structured logger to the loop. The zero value (nil)
// disables logging; the logiface builder chain is nil-safe so log sites pay
// almost nothing when unset.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetricSink selects where runtime metrics are emitted. A nil sink is
// replaced with [metrics.BlackholeSink], which is also the default.
func WithMetricSink(ms metrics.MetricSink) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		opts.sink = ms
		return nil
	}}
}

// WithScheduleAfter overrides the delayed-callback primitive used by
// [Loop.QueueMacrotaskAfter]. The default is the loop's internal monotonic
// timer heap; hosts with their own clock (or tests with a manual clock)
// supply a replacement here.
func WithScheduleAfter(fn ScheduleAfterFunc) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.scheduleAfter = fn
		return nil
	}}
}

// WithUnhandledRejection configures a handler invoked for rejected futures
// that never receive a rejection handler. Without it, unhandled rejections
// are logged (when a logger is configured) and otherwise dropped, which is
// the documented caller responsibility.
func WithUnhandledRejection(handler RejectionHandler) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.onUnhandled = handler
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{
		sink: &metrics.BlackholeSink{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
