// Package natsnode provides a source/sink node bridging the graph to
// NATS subjects.
//
// The subscribe side publishes each message received on a subject into
// the graph; the sink side publishes each incoming item to a subject.
// Reconnect handling is delegated to the NATS client, which redials
// with its own backoff while the node keeps running.
package natsnode

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/streamkit/flowgraph"
	"github.com/streamkit/flowgraph/errors"
	"github.com/streamkit/flowgraph/metric"
)

const (
	defaultReconnectWait = 2 * time.Second
	defaultPendingLimit  = 4096
)

// Config holds configuration for a NATS bridge node.
type Config struct {
	// URL is the NATS server URL, e.g. nats://localhost:4222. Ignored
	// when a connection is injected through Deps.Conn.
	URL string

	// SubscribeSubject is the subject whose messages are published into
	// the graph. Empty disables the source side.
	SubscribeSubject string

	// PublishSubject is the subject incoming items are published to.
	// Empty disables the sink side; items are then dropped.
	PublishSubject string

	// ReconnectWait paces the client's redial attempts. Defaults to 2s.
	ReconnectWait time.Duration

	// PendingLimit caps the subscription's buffered messages before the
	// client starts dropping. Defaults to 4096.
	PendingLimit int
}

// Validate requires at least one direction to be configured.
func (c *Config) Validate() error {
	if c.SubscribeSubject == "" && c.PublishSubject == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "natsnode", "Validate", "neither subject set")
	}
	if c.ReconnectWait < 0 || c.PendingLimit < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "natsnode", "Validate", "negative wait or limit")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ReconnectWait == 0 {
		out.ReconnectWait = defaultReconnectWait
	}
	if out.PendingLimit == 0 {
		out.PendingLimit = defaultPendingLimit
	}
	return out
}

// Deps holds runtime dependencies for a NATS bridge node.
type Deps struct {
	Name            string
	Config          Config
	Conn            *nats.Conn              // optional, shared connection
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Node bridges the graph to NATS. Its goroutine republishes subject
// messages into the graph; its Receive publishes incoming items to the
// configured subject.
type Node struct {
	*flowgraph.Runner
	flowgraph.Fanout

	name   string
	cfg    Config
	logger *slog.Logger

	conn     *nats.Conn
	ownsConn bool
	sub      *nats.Subscription
	msgs     chan *nats.Msg

	metrics *metric.NodeMetrics
}

var _ flowgraph.Subscriber = (*Node)(nil)
var _ flowgraph.Publisher = (*Node)(nil)
var _ flowgraph.Runnable = (*Node)(nil)

// New creates a NATS bridge node. Either Deps.Conn or Config.URL must
// be set.
func New(deps Deps) (*Node, error) {
	if deps.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "natsnode", "New", "empty node name")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Conn == nil && deps.Config.URL == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "natsnode", "New", "no connection and no URL")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("node", deps.Name)
	}

	return &Node{
		Runner:  flowgraph.NewRunner(),
		name:    deps.Name,
		cfg:     deps.Config.withDefaults(),
		logger:  logger,
		conn:    deps.Conn,
		metrics: deps.MetricsRegistry.ForNode(deps.Name),
	}, nil
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Start connects (unless a connection was injected), subscribes, and
// spawns the node's goroutine.
func (n *Node) Start(ctx context.Context) error {
	if n.conn == nil {
		conn, err := nats.Connect(n.cfg.URL,
			nats.Name(n.name),
			nats.ReconnectWait(n.cfg.ReconnectWait),
			nats.MaxReconnects(-1),
			nats.RetryOnFailedConnect(true),
		)
		if err != nil {
			return errors.WrapTransient(err, n.name, "Start", "connect to NATS")
		}
		n.conn = conn
		n.ownsConn = true
	}

	if n.cfg.SubscribeSubject != "" {
		n.msgs = make(chan *nats.Msg, n.cfg.PendingLimit)
		sub, err := n.conn.ChanSubscribe(n.cfg.SubscribeSubject, n.msgs)
		if err != nil {
			n.closeConn()
			return errors.WrapTransient(err, n.name, "Start", "subscribe "+n.cfg.SubscribeSubject)
		}
		n.sub = sub
		n.logger.Info("subscribed", "subject", n.cfg.SubscribeSubject)
	}

	if err := n.Go(ctx, n.run); err != nil {
		n.closeConn()
		return err
	}
	return nil
}

func (n *Node) run(context.Context) {
	defer n.closeConn()

	if n.msgs == nil {
		<-n.Stopping()
		return
	}

	for {
		select {
		case <-n.Stopping():
			return
		case msg := <-n.msgs:
			if n.metrics != nil {
				n.metrics.BytesReceived.Add(float64(len(msg.Data)))
				n.metrics.ItemsPublished.Inc()
			}
			n.logger.Debug("received message", "subject", msg.Subject, "bytes", len(msg.Data))
			n.PublishFrom(n, msg.Data)
		}
	}
}

// Receive publishes the item's raw bytes to the configured subject.
// Items are dropped when no publish subject is configured or the item
// is not a byte slice. Publish errors are dropped, not surfaced; the
// client buffers and redials on its own.
func (n *Node) Receive(from flowgraph.Publisher, item flowgraph.Item) {
	data, ok := item.([]byte)
	if !ok {
		n.logger.Warn("dropping non-byte item", "from", from.Name())
		n.metrics.Drop("not-bytes")
		return
	}
	if n.cfg.PublishSubject == "" {
		n.metrics.Drop("no-subject")
		return
	}
	conn := n.conn
	if conn == nil {
		n.metrics.Drop("stopped")
		return
	}

	if err := conn.Publish(n.cfg.PublishSubject, data); err != nil {
		n.logger.Debug("publish failed", "error", err)
		n.metrics.Drop("publish-error")
		return
	}

	if n.metrics != nil {
		n.metrics.BytesSent.Add(float64(len(data)))
		n.metrics.ItemsReceived.Inc()
	}
	n.logger.Debug("published message", "subject", n.cfg.PublishSubject, "bytes", len(data))
}

// closeConn tears the subscription and (when owned) the connection
// down. The conn handle itself is left in place so a concurrent Receive
// fails into the drop path instead of racing a nil assignment.
func (n *Node) closeConn() {
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
		n.sub = nil
	}
	if n.conn != nil && n.ownsConn {
		n.conn.Close()
	}
}
