package coop

import (
	"sync"

	"github.com/eapache/queue"
)

// ReceiveResult is the settlement value of [Channel.Receive]. OK is false
// only when the channel is closed and drained.
type ReceiveResult struct {
	Value any
	OK    bool
}

// sendWaiter is a blocked sender: its value plus the settlement functions
// of the future its Send returned.
type sendWaiter struct {
	value   any
	resolve ResolveFunc
	reject  RejectFunc
}

// Channel is a bounded-buffer rendezvous primitive in the style of Go's
// native channels, expressed over futures. Sends beyond capacity and
// receives from an empty channel return pending futures rather than
// blocking; waiters on both sides are served in FIFO order. A value handed
// directly from a waiting sender to a waiting receiver never touches the
// buffer.
//
// Capacity zero makes every transfer a direct rendezvous.
type Channel struct {
	loop *Loop

	mu          sync.Mutex
	buf         *queue.Queue // values
	sendWaiters *queue.Queue // *sendWaiter
	recvWaiters *queue.Queue // ResolveFunc
	capacity    int
	closed      bool
}

// NewChannel creates a channel with the given buffer capacity (0 or more).
func NewChannel(loop *Loop, capacity int) *Channel {
	if capacity < 0 {
		panic("coop: negative channel capacity")
	}
	return &Channel{
		loop:        loop,
		buf:         queue.New(),
		sendWaiters: queue.New(),
		recvWaiters: queue.New(),
		capacity:    capacity,
	}
}

// Send offers v to the channel and returns a future that fulfills with true
// once the value has been accepted (received directly, buffered, or — for
// a queued sender — once a receiver frees space).
//
// Send on a closed channel is a protocol violation and panics with
// [ErrSendClosed], matching native channel semantics.
func (c *Channel) Send(v any) *Future {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		panic(ErrSendClosed)
	}

	c.loop.metricSink().IncrCounter(MetricChannelSendCount, 1)

	// Waiting receiver: direct handoff, the buffer is not involved.
	if c.recvWaiters.Length() > 0 {
		resolve := c.recvWaiters.Remove().(ResolveFunc)
		c.mu.Unlock()
		resolve(ReceiveResult{Value: v, OK: true})
		return c.loop.Resolved(true)
	}

	if c.buf.Length() < c.capacity {
		c.buf.Add(v)
		c.mu.Unlock()
		return c.loop.Resolved(true)
	}

	f, resolve, reject := c.loop.NewFuture()
	c.sendWaiters.Add(&sendWaiter{value: v, resolve: resolve, reject: reject})
	c.mu.Unlock()
	return f
}

// Receive returns a future that fulfills with the next value as a
// [ReceiveResult]. Buffered values drain before closure is reported; once
// the channel is closed and empty the result has OK set to false.
func (c *Channel) Receive() *Future {
	c.mu.Lock()

	c.loop.metricSink().IncrCounter(MetricChannelReceiveCount, 1)

	if c.buf.Length() > 0 {
		v := c.buf.Remove()

		// Promote the head send-waiter into the freed slot.
		if c.sendWaiters.Length() > 0 {
			w := c.sendWaiters.Remove().(*sendWaiter)
			c.buf.Add(w.value)
			c.mu.Unlock()
			w.resolve(true)
		} else {
			c.mu.Unlock()
		}
		return c.loop.Resolved(ReceiveResult{Value: v, OK: true})
	}

	// Empty buffer but a queued sender: rendezvous handoff.
	if c.sendWaiters.Length() > 0 {
		w := c.sendWaiters.Remove().(*sendWaiter)
		c.mu.Unlock()
		w.resolve(true)
		return c.loop.Resolved(ReceiveResult{Value: w.value, OK: true})
	}

	if c.closed {
		c.mu.Unlock()
		return c.loop.Resolved(ReceiveResult{OK: false})
	}

	f, resolve, _ := c.loop.NewFuture()
	c.recvWaiters.Add(resolve)
	c.mu.Unlock()
	return f
}

// Close marks the channel closed. Queued receivers settle immediately with
// OK false; buffered values remain receivable until drained. Queued
// senders are deliberately left pending: closing is a receiver-side
// guarantee only. Use [Channel.CloseAndRejectPendingSends] to fail them
// instead. Close is idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	var resolves []ResolveFunc
	for c.recvWaiters.Length() > 0 {
		resolves = append(resolves, c.recvWaiters.Remove().(ResolveFunc))
	}
	c.mu.Unlock()

	for _, resolve := range resolves {
		resolve(ReceiveResult{OK: false})
	}
}

// CloseAndRejectPendingSends closes the channel like [Channel.Close] and
// additionally rejects every queued send future with [ErrSendClosed],
// for callers that need sender-side shutdown notification.
func (c *Channel) CloseAndRejectPendingSends() {
	c.Close()

	c.mu.Lock()
	var rejects []RejectFunc
	for c.sendWaiters.Length() > 0 {
		rejects = append(rejects, c.sendWaiters.Remove().(*sendWaiter).reject)
	}
	c.mu.Unlock()

	for _, reject := range rejects {
		reject(ErrSendClosed)
	}
}

// Len returns the number of buffered values.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Length()
}

// Cap returns the buffer capacity.
func (c *Channel) Cap() int {
	return c.capacity
}
