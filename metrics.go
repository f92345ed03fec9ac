package coop

import (
	"github.com/hashicorp/go-metrics"
)

// Metric keys emitted by the runtime. All counters unless noted.
var (
	MetricLoopMacrotaskCount   = []string{"coop", "loop", "macrotask", "count"}
	MetricLoopMicrotaskCount   = []string{"coop", "loop", "microtask", "count"}
	MetricLoopPanicCount       = []string{"coop", "loop", "panic", "count"}
	MetricLoopMacroQueueDepth  = []string{"coop", "loop", "macrotask", "depth"} // gauge
	MetricLoopMicroQueueDepth  = []string{"coop", "loop", "microtask", "depth"} // gauge
	MetricUnhandledRejections  = []string{"coop", "future", "unhandled", "rejection", "count"}
	MetricSchedulerCompleted   = []string{"coop", "scheduler", "task", "completed", "count"}
	MetricSchedulerFailed      = []string{"coop", "scheduler", "task", "failed", "count"}
	MetricSchedulerPendingSize = []string{"coop", "scheduler", "pending", "depth"} // gauge
	MetricChannelSendCount     = []string{"coop", "channel", "send", "count"}
	MetricChannelReceiveCount  = []string{"coop", "channel", "receive", "count"}
	MetricSemaphoreWaiterDepth = []string{"coop", "semaphore", "waiter", "depth"} // gauge
)

// sink returns the configured metric sink, never nil.
func (l *Loop) metricSink() metrics.MetricSink {
	return l.sink
}
