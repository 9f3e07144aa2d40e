package flowgraph

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamkit/flowgraph/errors"
)

// RunState represents the lifecycle state of a thread-owning node.
type RunState int32

const (
	// StateCreated indicates the node was created but not started
	StateCreated RunState = iota
	// StateRunning indicates the node's goroutine is executing
	StateRunning
	// StateStopRequested indicates a cooperative stop has been requested
	StateStopRequested
	// StateStopped indicates the node's goroutine has exited
	StateStopped
)

// String returns a string representation of the run state
func (s RunState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop-requested"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Runner provides the cooperative start/stop/join machinery shared by all
// thread-owning nodes. Concrete nodes embed a *Runner and pass their run
// loop to Go; the loop is expected to observe Stopping (or ShouldStop)
// within one poll interval of a stop request.
//
// Stop is idempotent and never forcibly interrupts the run loop; nodes
// whose loops can block indefinitely (for example mid-payload socket
// reads) additionally close their socket in their own Stop so the flag is
// observed promptly.
type Runner struct {
	mu       sync.Mutex
	state    atomic.Int32
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRunner creates the lifecycle state for one thread-owning node.
func NewRunner() *Runner {
	return &Runner{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Go transitions created → running and spawns the node's goroutine. The
// goroutine executes run and is joined via Join. A canceled ctx is treated
// as a stop request. Starting twice is an error.
func (r *Runner) Go(ctx context.Context, run func(ctx context.Context)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Runner", "Go", "state transition")
	}

	// Propagate context cancellation into the cooperative stop flag.
	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-r.done:
		}
	}()

	go func() {
		defer func() {
			r.state.Store(int32(StateStopped))
			close(r.done)
		}()
		run(ctx)
	}()

	return nil
}

// Stop requests a cooperative stop. It is idempotent, returns immediately,
// and does not interrupt blocking operations; run loops observe the
// request at their next poll point.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.state.CompareAndSwap(int32(StateRunning), int32(StateStopRequested))
		close(r.stop)
	})
}

// Stopping returns a channel that is closed once a stop has been
// requested. Run loops select on it at every blocking point.
func (r *Runner) Stopping() <-chan struct{} {
	return r.stop
}

// ShouldStop reports whether a stop has been requested.
func (r *Runner) ShouldStop() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Join blocks until the node's goroutine has exited, or the timeout
// elapses. Once Join returns nil no further Publish calls originate from
// this node. Joining a node that was never started is an error.
func (r *Runner) Join(timeout time.Duration) error {
	if RunState(r.state.Load()) == StateCreated {
		return errors.WrapInvalid(errors.ErrNotStarted, "Runner", "Join", "state check")
	}

	select {
	case <-r.done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrStopTimeout, "Runner", "Join", "wait for run loop exit")
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() RunState {
	return RunState(r.state.Load())
}
