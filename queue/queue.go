// Package queue provides the active queue node: a thread-owning
// intermediate node backed by a thread-safe FIFO.
//
// The node decouples a publisher's goroutine from slow or
// non-concurrency-safe subscribers: Receive only enqueues, and the node's
// own goroutine drains the queue and delivers to subscribers. It is the
// one node type whose Receive is safe for any number of concurrent
// publishers, and the only component with a documented FIFO delivery
// guarantee (per producer; cross-producer order is arrival order at the
// queue).
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamkit/flowgraph"
	"github.com/streamkit/flowgraph/buffer"
	"github.com/streamkit/flowgraph/errors"
	"github.com/streamkit/flowgraph/metric"
)

const (
	defaultCapacity     = 4096
	defaultPollInterval = time.Second
)

// Config holds configuration for a queue node.
type Config struct {
	// Capacity bounds the internal FIFO. Defaults to 4096.
	Capacity int

	// Policy selects the overflow behavior when the FIFO is full.
	// Block applies backpressure to publishers; DropOldest restores the
	// classic enqueue-always-succeeds behavior at the cost of loss.
	// Defaults to Block.
	Policy buffer.OverflowPolicy

	// PollInterval bounds the dequeue wait, which in turn bounds how
	// quickly the run loop observes a stop request. Defaults to 1s.
	PollInterval time.Duration
}

// Validate implements basic configuration validation.
func (c *Config) Validate() error {
	if c.Capacity < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"queue", "Validate", "negative capacity")
	}
	if c.PollInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"queue", "Validate", "negative poll interval")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Capacity == 0 {
		out.Capacity = defaultCapacity
	}
	if out.PollInterval == 0 {
		out.PollInterval = defaultPollInterval
	}
	return out
}

// Deps holds runtime dependencies for a queue node.
type Deps struct {
	Name            string
	Config          Config
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Node is the active queue node. It implements flowgraph.Subscriber,
// flowgraph.Publisher and flowgraph.Runnable.
type Node struct {
	*flowgraph.Runner
	flowgraph.Fanout

	name   string
	cfg    Config
	logger *slog.Logger
	buf    *buffer.FIFO[flowgraph.Item]

	delivered prometheus.Counter
}

var _ flowgraph.Subscriber = (*Node)(nil)
var _ flowgraph.Publisher = (*Node)(nil)
var _ flowgraph.Runnable = (*Node)(nil)

// New creates a queue node. Configuration errors fail here, never later.
func New(deps Deps) (*Node, error) {
	if deps.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "queue", "New", "empty node name")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config.withDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("node", deps.Name)
	}

	var bufOpts []buffer.Option[flowgraph.Item]
	bufOpts = append(bufOpts, buffer.WithOverflowPolicy[flowgraph.Item](cfg.Policy))
	if deps.MetricsRegistry != nil {
		bufOpts = append(bufOpts, buffer.WithMetrics[flowgraph.Item](deps.MetricsRegistry, deps.Name))
	}

	buf, err := buffer.New(cfg.Capacity, bufOpts...)
	if err != nil {
		return nil, err
	}

	n := &Node{
		Runner: flowgraph.NewRunner(),
		name:   deps.Name,
		cfg:    cfg,
		logger: logger,
		buf:    buf,
	}

	if deps.MetricsRegistry != nil {
		n.delivered = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowgraph",
			Subsystem: "queue",
			Name:      fmt.Sprintf("%s_delivered_total", deps.Name),
			Help:      "Items delivered to subscribers by the queue node",
		})
		if err := deps.MetricsRegistry.RegisterCounter(deps.Name, "delivered", n.delivered); err != nil {
			return nil, err
		}
	}

	return n, nil
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Receive enqueues the item. It is safe for concurrent invocation from
// any number of publishers. With the Block overflow policy a full queue
// makes the publisher wait; with a drop policy it never blocks.
func (n *Node) Receive(from flowgraph.Publisher, item flowgraph.Item) {
	if err := n.buf.Write(item); err != nil {
		n.logger.Debug("item dropped", "from", from.Name(), "error", err)
	}
}

// Start spawns the node's goroutine, which drains the queue and publishes
// each item to all subscribers in FIFO order.
func (n *Node) Start(ctx context.Context) error {
	return n.Go(ctx, n.run)
}

// Stop requests a cooperative stop. Items still buffered when the run
// loop exits are discarded; no drain guarantee is made.
func (n *Node) Stop() {
	n.Runner.Stop()
}

func (n *Node) run(ctx context.Context) {
	defer func() { _ = n.buf.Close() }()

	n.logger.Debug("queue running", "capacity", n.cfg.Capacity, "policy", n.cfg.Policy.String())

	for {
		select {
		case <-n.Stopping():
			return
		default:
		}

		// Bounded wait keeps the stop flag observable.
		item, ok := n.buf.Read(n.cfg.PollInterval)
		if !ok {
			continue
		}

		n.PublishFrom(n, item)
		if n.delivered != nil {
			n.delivered.Inc()
		}
	}
}
