// Package ws provides a source/sink node backed by a WebSocket client
// connection.
//
// WebSocket frames carry message boundaries, so no Header strategy is
// needed: each received message becomes one item and each incoming item
// is written as one binary message. The node dials the configured URL
// and redials at the poll cadence after a disconnect, mirroring the TCP
// client role.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamkit/flowgraph"
	"github.com/streamkit/flowgraph/errors"
	"github.com/streamkit/flowgraph/metric"
)

const defaultPollInterval = time.Second

// Config holds configuration for a WebSocket source/sink node.
type Config struct {
	// URL is the endpoint to dial, ws:// or wss://.
	URL string

	// Headers are sent with the handshake request, e.g. authorization.
	Headers http.Header

	// PollInterval bounds each dial attempt and paces reconnects.
	// Defaults to 1s.
	PollInterval time.Duration
}

// Validate checks the endpoint configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "ws", "Validate", "empty endpoint URL")
	}
	if c.PollInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ws", "Validate", "negative poll interval")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PollInterval == 0 {
		out.PollInterval = defaultPollInterval
	}
	return out
}

// Deps holds runtime dependencies for a WebSocket source/sink node.
type Deps struct {
	Name            string
	Config          Config
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// SourceSink is a node backed by a WebSocket client connection. Its
// goroutine publishes each received message payload to subscribers; its
// Receive writes incoming items to the peer as binary messages.
type SourceSink struct {
	*flowgraph.Runner
	flowgraph.Fanout

	name   string
	cfg    Config
	logger *slog.Logger

	// mu guards the connection handle against reconnect swaps; wmu
	// serializes writers, which gorilla requires.
	mu   sync.RWMutex
	wmu  sync.Mutex
	conn *websocket.Conn

	metrics *metric.NodeMetrics
}

var _ flowgraph.Subscriber = (*SourceSink)(nil)
var _ flowgraph.Publisher = (*SourceSink)(nil)
var _ flowgraph.Runnable = (*SourceSink)(nil)

// New creates a WebSocket source/sink node.
func New(deps Deps) (*SourceSink, error) {
	if deps.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "ws", "New", "empty node name")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("node", deps.Name)
	}

	return &SourceSink{
		Runner:  flowgraph.NewRunner(),
		name:    deps.Name,
		cfg:     deps.Config.withDefaults(),
		logger:  logger,
		metrics: deps.MetricsRegistry.ForNode(deps.Name),
	}, nil
}

// Name returns the node name.
func (n *SourceSink) Name() string { return n.name }

// Connected reports whether a peer connection is currently held.
func (n *SourceSink) Connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn != nil
}

// Start spawns the node's goroutine. The first dial happens inside the
// goroutine, so an unreachable endpoint does not fail startup.
func (n *SourceSink) Start(ctx context.Context) error {
	return n.Go(ctx, n.run)
}

// Stop requests a cooperative stop and closes the live connection so a
// blocked message read is released immediately.
func (n *SourceSink) Stop() {
	n.Runner.Stop()
	n.closeConn()
}

func (n *SourceSink) run(ctx context.Context) {
	defer n.closeConn()

	first := true
	for {
		if !n.dialOne(ctx) {
			return
		}
		if !first && n.metrics != nil {
			n.metrics.Reconnects.Inc()
		}
		first = false

		n.readLoop()
		n.closeConn()

		if n.ShouldStop() {
			return
		}
	}
}

func (n *SourceSink) dialOne(ctx context.Context) bool {
	dialer := websocket.Dialer{HandshakeTimeout: n.cfg.PollInterval}
	for {
		if n.ShouldStop() {
			return false
		}

		start := time.Now()
		conn, resp, err := dialer.DialContext(ctx, n.cfg.URL, n.cfg.Headers)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			n.setConn(conn)
			n.logger.Info("established websocket connection", "url", n.cfg.URL)
			return true
		}

		if rest := n.cfg.PollInterval - time.Since(start); rest > 0 {
			select {
			case <-n.Stopping():
				return false
			case <-time.After(rest):
			}
		}
	}
}

// readLoop publishes each received message until the peer disconnects
// or a stop closes the connection under the blocked read.
func (n *SourceSink) readLoop() {
	conn := n.current()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !n.ShouldStop() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				n.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		if n.metrics != nil {
			n.metrics.BytesReceived.Add(float64(len(data)))
			n.metrics.ItemsPublished.Inc()
		}
		n.logger.Debug("received message", "bytes", len(data))
		n.PublishFrom(n, data)
	}
}

// Receive writes the item's raw bytes to the peer as one binary
// message. Items are silently dropped when no peer is connected or the
// item is not a byte slice.
func (n *SourceSink) Receive(from flowgraph.Publisher, item flowgraph.Item) {
	data, ok := item.([]byte)
	if !ok {
		n.logger.Warn("dropping non-byte item", "from", from.Name())
		n.metrics.Drop("not-bytes")
		return
	}

	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()
	if conn == nil {
		n.logger.Debug("dropping item while disconnected", "from", from.Name(), "bytes", len(data))
		n.metrics.Drop("disconnected")
		return
	}

	n.wmu.Lock()
	defer n.wmu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		n.logger.Debug("send failed", "error", err)
		n.metrics.Drop("write-error")
		return
	}

	if n.metrics != nil {
		n.metrics.BytesSent.Add(float64(len(data)))
		n.metrics.ItemsReceived.Inc()
	}
	n.logger.Debug("sent message", "bytes", len(data))
}

func (n *SourceSink) current() *websocket.Conn {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn
}

func (n *SourceSink) setConn(conn *websocket.Conn) {
	n.mu.Lock()
	n.conn = conn
	n.mu.Unlock()
	if n.metrics != nil {
		n.metrics.ConnectionUp.Set(1)
	}
}

func (n *SourceSink) closeConn() {
	n.mu.Lock()
	conn := n.conn
	n.conn = nil
	n.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(100 * time.Millisecond)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		n.wmu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		n.wmu.Unlock()
		_ = conn.Close()
		if n.metrics != nil {
			n.metrics.ConnectionUp.Set(0)
		}
	}
}
