package coop

import (
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
)

func counterSum(t *testing.T, sink *metrics.InmemSink, key []string) float64 {
	t.Helper()
	var sum float64
	for _, interval := range sink.Data() {
		interval.RLock()
		if sample, ok := interval.Counters[strings.Join(key, ".")]; ok {
			sum += sample.Sum
		}
		interval.RUnlock()
	}
	return sum
}

func TestLoopTaskMetrics(t *testing.T) {
	sink := metrics.NewInmemSink(time.Hour, time.Hour)
	l := newTestLoop(t, WithMetricSink(sink))

	if err := l.QueueMicrotask(func() {}); err != nil {
		t.Fatalf("QueueMicrotask: %v", err)
	}
	settleBarrier(t, l)

	if got := counterSum(t, sink, MetricLoopMicrotaskCount); got < 1 {
		t.Fatalf("microtask count = %v, want >= 1", got)
	}
	if got := counterSum(t, sink, MetricLoopMacrotaskCount); got < 1 {
		t.Fatalf("macrotask count = %v, want >= 1", got)
	}
}

func TestPanicMetric(t *testing.T) {
	sink := metrics.NewInmemSink(time.Hour, time.Hour)
	l := newTestLoop(t, WithMetricSink(sink))

	if err := l.QueueMacrotask(func() { panic("counted") }); err != nil {
		t.Fatalf("QueueMacrotask: %v", err)
	}
	settleBarrier(t, l)

	if got := counterSum(t, sink, MetricLoopPanicCount); got != 1 {
		t.Fatalf("panic count = %v, want 1", got)
	}
}

func TestChannelMetrics(t *testing.T) {
	sink := metrics.NewInmemSink(time.Hour, time.Hour)
	l := newTestLoop(t, WithMetricSink(sink))

	ch := NewChannel(l, 1)
	awaitValue(t, ch.Send(1))
	awaitValue(t, ch.Receive())

	if got := counterSum(t, sink, MetricChannelSendCount); got != 1 {
		t.Fatalf("send count = %v, want 1", got)
	}
	if got := counterSum(t, sink, MetricChannelReceiveCount); got != 1 {
		t.Fatalf("receive count = %v, want 1", got)
	}
}

func TestUnhandledRejectionMetric(t *testing.T) {
	sink := metrics.NewInmemSink(time.Hour, time.Hour)
	reported := make(chan struct{})
	l := newTestLoop(t,
		WithMetricSink(sink),
		WithUnhandledRejection(func(any) { close(reported) }),
	)

	_, _, reject := l.NewFuture()
	reject("dropped")

	select {
	case <-reported:
	case <-time.After(testTimeout):
		t.Fatal("rejection never reported")
	}

	if got := counterSum(t, sink, MetricUnhandledRejections); got != 1 {
		t.Fatalf("unhandled rejection count = %v, want 1", got)
	}
}
