// Package udp provides a source/sink node backed by a UDP socket.
//
// Unlike the TCP node there is no connection or framing: each received
// datagram is published as one item, and each incoming item is sent as
// one datagram to the configured destination. A node may listen, send,
// or both, over the same socket.
package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/streamkit/flowgraph"
	"github.com/streamkit/flowgraph/errors"
	"github.com/streamkit/flowgraph/metric"
)

const (
	defaultBufferSize   = 64 << 10 // 64 KiB, the practical datagram ceiling
	defaultPollInterval = time.Second
)

// Config holds configuration for a UDP source/sink node.
type Config struct {
	// ListenAddr is the local address to bind for receiving, host:port.
	// Empty disables the receive side.
	ListenAddr string

	// SendAddr is the destination for outgoing datagrams, host:port.
	// Empty disables the send side; incoming items are then dropped.
	SendAddr string

	// BufferSize is the receive buffer size in bytes. Datagrams larger
	// than this are truncated by the OS. Defaults to 64 KiB.
	BufferSize int

	// PollInterval bounds each blocking read so stop requests stay
	// observable. Defaults to 1s.
	PollInterval time.Duration
}

// Validate requires at least one direction to be configured.
func (c *Config) Validate() error {
	if c.ListenAddr == "" && c.SendAddr == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "udp", "Validate", "neither listen nor send address set")
	}
	if c.BufferSize < 0 || c.PollInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "udp", "Validate", "negative buffer size or interval")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BufferSize == 0 {
		out.BufferSize = defaultBufferSize
	}
	if out.PollInterval == 0 {
		out.PollInterval = defaultPollInterval
	}
	return out
}

// Deps holds runtime dependencies for a UDP source/sink node.
type Deps struct {
	Name            string
	Config          Config
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// SourceSink is a node backed by a single UDP socket. Its goroutine
// publishes each received datagram to subscribers; its Receive sends
// each incoming item as a datagram to the configured destination.
type SourceSink struct {
	*flowgraph.Runner
	flowgraph.Fanout

	name   string
	cfg    Config
	logger *slog.Logger

	conn *net.UDPConn
	dst  *net.UDPAddr

	metrics *metric.NodeMetrics
}

var _ flowgraph.Subscriber = (*SourceSink)(nil)
var _ flowgraph.Publisher = (*SourceSink)(nil)
var _ flowgraph.Runnable = (*SourceSink)(nil)

// New creates a UDP source/sink node.
func New(deps Deps) (*SourceSink, error) {
	if deps.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "udp", "New", "empty node name")
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

// Start binds the socket, resolves the send destination, and spawns the
// node's goroutine.
func (n *SourceSink) Start(ctx context.Context) error {
	if n.cfg.SendAddr != "" {
		dst, err := net.ResolveUDPAddr("udp", n.cfg.SendAddr)
		if err != nil {
			return errors.WrapFatal(err, n.name, "Start", fmt.Sprintf("resolve %s", n.cfg.SendAddr))
		}
		n.dst = dst
	}

	laddr := &net.UDPAddr{} // ephemeral port for send-only nodes
	if n.cfg.ListenAddr != "" {
		resolved, err := net.ResolveUDPAddr("udp", n.cfg.ListenAddr)
		if err != nil {
			return errors.WrapFatal(err, n.name, "Start", fmt.Sprintf("resolve %s", n.cfg.ListenAddr))
		}
		laddr = resolved
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return errors.WrapFatal(err, n.name, "Start", fmt.Sprintf("bind %s", n.cfg.ListenAddr))
	}
	n.conn = conn
	n.logger.Info("udp socket ready", "local", conn.LocalAddr().String(), "send_to", n.cfg.SendAddr)

	if err := n.Go(ctx, n.run); err != nil {
		_ = conn.Close()
		n.conn = nil
		return err
	}
	return nil
}

// Stop requests a cooperative stop. The socket closes once the read
// loop observes the request, at most one poll interval later.
func (n *SourceSink) Stop() {
	n.Runner.Stop()
}

// Addr returns the bound local address (after Start). Useful when
// binding to port 0.
func (n *SourceSink) Addr() net.Addr {
	if n.conn == nil {
		return nil
	}
	return n.conn.LocalAddr()
}

// run owns the socket's read side. The conn handle itself is never
// replaced after Start, so Receive can use it without a lock; closing
// it on exit makes late sends fail into the drop path.
func (n *SourceSink) run(context.Context) {
	defer func() { _ = n.conn.Close() }()

	if n.cfg.ListenAddr == "" {
		// Send-only: nothing to read, just wait for the stop request.
		<-n.Stopping()
		return
	}

	buf := make([]byte, n.cfg.BufferSize)
	for {
		if n.ShouldStop() {
			return
		}

		_ = n.conn.SetReadDeadline(time.Now().Add(n.cfg.PollInterval))
		nr, _, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if !n.ShouldStop() {
				n.logger.Warn("udp read failed", "error", err)
			}
			return
		}

		item := make([]byte, nr)
		copy(item, buf[:nr])

		if n.metrics != nil {
			n.metrics.BytesReceived.Add(float64(nr))
			n.metrics.ItemsPublished.Inc()
		}
		n.logger.Debug("received datagram", "bytes", nr)
		n.PublishFrom(n, item)
	}
}

// Receive sends the item's raw bytes as one datagram to the configured
// destination. Items are dropped when no destination is configured, the
// node is not running, or the item is not a byte slice.
func (n *SourceSink) Receive(from flowgraph.Publisher, item flowgraph.Item) {
	data, ok := item.([]byte)
	if !ok {
		n.logger.Warn("dropping non-byte item", "from", from.Name())
		n.metrics.Drop("not-bytes")
		return
	}
	if n.dst == nil {
		n.metrics.Drop("no-destination")
		return
	}
	conn := n.conn
	if conn == nil {
		n.metrics.Drop("stopped")
		return
	}

	if _, err := conn.WriteToUDP(data, n.dst); err != nil {
		n.logger.Debug("send failed", "error", err)
		n.metrics.Drop("write-error")
		return
	}

	if n.metrics != nil {
		n.metrics.BytesSent.Add(float64(len(data)))
		n.metrics.ItemsReceived.Inc()
	}
	n.logger.Debug("sent datagram", "bytes", len(data))
}
