// Package buffer provides a generic, thread-safe FIFO with explicit
// capacity and overflow policy.
//
// The FIFO is the hand-off structure used by thread-owning nodes: any
// number of producers write concurrently, a single consumer drains with a
// bounded wait so cooperative stop flags stay observable. Overflow
// behavior is an explicit choice:
//
//   - Block: writers wait for space (backpressure)
//   - DropOldest: the oldest buffered item is discarded to make room
//   - DropNewest: the incoming item is discarded
//
// Statistics are always collected; Prometheus metrics are optional via
// WithMetrics.
package buffer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamkit/flowgraph/errors"
)

// OverflowPolicy defines how the FIFO behaves when it reaches capacity.
type OverflowPolicy int

const (
	// Block causes Write operations to wait until space is available.
	Block OverflowPolicy = iota

	// DropOldest removes the oldest item to make room for new items.
	DropOldest

	// DropNewest drops incoming items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case Block:
		return "Block"
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item dropped due to the overflow
// policy.
type DropCallback[T any] func(item T)

// Statistics is a point-in-time snapshot of buffer activity.
type Statistics struct {
	Writes int64
	Reads  int64
	Drops  int64
	Depth  int
}

// FIFO is a bounded, thread-safe first-in-first-out buffer. Items are
// read in the order they were accepted, regardless of how many producers
// wrote concurrently.
type FIFO[T any] struct {
	ch     chan T
	policy OverflowPolicy
	dropCb DropCallback[T]

	closed    chan struct{}
	closeOnce sync.Once

	writes atomic.Int64
	reads  atomic.Int64
	drops  atomic.Int64

	metrics *fifoMetrics
}

// New creates a FIFO with the given capacity. Capacity must be positive;
// all other configuration is via functional options.
func New[T any](capacity int, options ...Option[T]) (*FIFO[T], error) {
	if capacity <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"FIFO", "New", "capacity must be positive")
	}

	opts := applyOptions(options...)

	f := &FIFO[T]{
		ch:     make(chan T, capacity),
		policy: opts.overflowPolicy,
		dropCb: opts.dropCallback,
		closed: make(chan struct{}),
	}

	if opts.metricsReg != nil {
		m, err := newFIFOMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, err
		}
		f.metrics = m
	}

	return f, nil
}

// Write adds an item to the buffer. With the Block policy it waits for
// space (or for Close); with a drop policy it never blocks.
func (f *FIFO[T]) Write(item T) error {
	select {
	case <-f.closed:
		return errors.WrapInvalid(errors.ErrBufferClosed, "FIFO", "Write", "closed check")
	default:
	}

	switch f.policy {
	case Block:
		select {
		case f.ch <- item:
		case <-f.closed:
			return errors.WrapInvalid(errors.ErrBufferClosed, "FIFO", "Write", "write wait")
		}

	case DropNewest:
		select {
		case f.ch <- item:
		default:
			f.drop(item)
			return nil
		}

	case DropOldest:
		for {
			select {
			case f.ch <- item:
				f.accepted()
				return nil
			default:
			}
			select {
			case old := <-f.ch:
				f.drop(old)
			default:
				// Raced with a reader; retry the send.
			}
		}
	}

	f.accepted()
	return nil
}

// Read removes and returns the oldest item, waiting up to timeout for one
// to arrive. It returns false on timeout or when the buffer is closed and
// drained.
func (f *FIFO[T]) Read(timeout time.Duration) (T, bool) {
	var zero T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-f.ch:
		f.consumed()
		return item, true
	case <-timer.C:
		return zero, false
	case <-f.closed:
		// Drain remaining items after close.
		select {
		case item := <-f.ch:
			f.consumed()
			return item, true
		default:
			return zero, false
		}
	}
}

// TryRead removes and returns the oldest item without waiting.
func (f *FIFO[T]) TryRead() (T, bool) {
	var zero T
	select {
	case item := <-f.ch:
		f.consumed()
		return item, true
	default:
		return zero, false
	}
}

// Len returns the current number of buffered items.
func (f *FIFO[T]) Len() int { return len(f.ch) }

// Cap returns the buffer capacity.
func (f *FIFO[T]) Cap() int { return cap(f.ch) }

// Close shuts the buffer down. Blocked writers are released with an
// error; buffered items remain readable until drained. Close is
// idempotent.
func (f *FIFO[T]) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
	})
	return nil
}

// Stats returns a snapshot of buffer activity.
func (f *FIFO[T]) Stats() Statistics {
	return Statistics{
		Writes: f.writes.Load(),
		Reads:  f.reads.Load(),
		Drops:  f.drops.Load(),
		Depth:  len(f.ch),
	}
}

func (f *FIFO[T]) accepted() {
	f.writes.Add(1)
	if f.metrics != nil {
		f.metrics.writes.Inc()
		f.metrics.depth.Set(float64(len(f.ch)))
	}
}

func (f *FIFO[T]) consumed() {
	f.reads.Add(1)
	if f.metrics != nil {
		f.metrics.reads.Inc()
		f.metrics.depth.Set(float64(len(f.ch)))
	}
}

func (f *FIFO[T]) drop(item T) {
	f.drops.Add(1)
	if f.metrics != nil {
		f.metrics.drops.Inc()
	}
	if f.dropCb != nil {
		f.dropCb(item)
	}
}
