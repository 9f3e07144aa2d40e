// Package tcp provides a source/sink node backed by a TCP connection with
// pluggable message framing.
//
// The node holds exactly one peer connection at a time. In server role it
// binds once and re-accepts after a peer disconnects (while a peer is
// connected the listener is not polled, so further clients wait in the OS
// accept backlog until the current peer goes away). In client role it
// redials after a disconnect. Both roles retry at the poll-interval
// cadence, without backoff or a retry limit, until a stop is requested.
//
// Messages are framed by a Header strategy: a fixed-length header is read
// with a bounded deadline (so stop requests stay observable), the payload
// length is derived from the header bytes, and the payload is then read
// without a deadline so a slow sender is not mistaken for EOF. Stop
// closes the live connection, which unblocks a pending payload read.
//
// The send path (Receive) runs on the publishing node's goroutine. The
// connection handle is guarded so a write can never target a handle that
// the read loop has replaced; when no peer is connected the item is
// silently dropped.
package tcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/streamkit/flowgraph"
	"github.com/streamkit/flowgraph/errors"
	"github.com/streamkit/flowgraph/metric"
)

const (
	defaultPollInterval = time.Second
	defaultMaxPayload   = 16 << 20 // 16 MiB
)

// Config holds configuration for a TCP source/sink node.
type Config struct {
	// Addr is the address to dial (client) or bind (server), host:port.
	Addr string

	// Server selects the role: listen-and-accept instead of dial.
	Server bool

	// Header is the framing strategy. Required.
	Header Header

	// KeepHeader retains the raw header bytes as a prefix of each
	// delivered item.
	KeepHeader bool

	// PollInterval bounds connect/accept attempts and header reads,
	// which in turn bounds stop latency. Defaults to 1s.
	PollInterval time.Duration

	// MaxPayload rejects header-announced payloads above this size and
	// drops the connection, since the stream can no longer be trusted.
	// Defaults to 16 MiB.
	MaxPayload int
}

// Validate implements configuration validation. A missing header strategy
// is a fatal configuration error.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "tcp", "Validate", "empty address")
	}
	if c.Header == nil {
		return errors.WrapFatal(errors.ErrMissingHeader, "tcp", "Validate", "header strategy check")
	}
	if c.Header.Len() < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tcp", "Validate", "negative header length")
	}
	if v, ok := c.Header.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if c.PollInterval < 0 || c.MaxPayload < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tcp", "Validate", "negative interval or payload limit")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.PollInterval == 0 {
		out.PollInterval = defaultPollInterval
	}
	if out.MaxPayload == 0 {
		out.MaxPayload = defaultMaxPayload
	}
	return out
}

// Deps holds runtime dependencies for a TCP source/sink node.
type Deps struct {
	Name            string
	Config          Config
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// SourceSink is a node backed by a TCP socket: its goroutine publishes
// each complete received message to subscribers, and its Receive writes
// incoming items to the peer. The two directions are independent.
type SourceSink struct {
	*flowgraph.Runner
	flowgraph.Fanout

	name   string
	cfg    Config
	logger *slog.Logger

	// mu guards the connection handle against the read loop swapping it
	// on reconnect while a publisher goroutine is sending; wmu
	// serializes writers so concurrent publishers cannot interleave
	// partial frames.
	mu   sync.RWMutex
	wmu  sync.Mutex
	conn net.Conn

	ln net.Listener

	metrics *metric.NodeMetrics
}

var _ flowgraph.Subscriber = (*SourceSink)(nil)
var _ flowgraph.Publisher = (*SourceSink)(nil)
var _ flowgraph.Runnable = (*SourceSink)(nil)

// New creates a TCP source/sink node. Configuration errors fail here,
// never later.
func New(deps Deps) (*SourceSink, error) {
	if deps.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "tcp", "New", "empty node name")
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

// Start binds the listener (server role) and spawns the node's goroutine.
func (n *SourceSink) Start(ctx context.Context) error {
	if n.cfg.Server {
		ln, err := net.Listen("tcp", n.cfg.Addr)
		if err != nil {
			return errors.WrapFatal(err, n.name, "Start", fmt.Sprintf("bind %s", n.cfg.Addr))
		}
		n.ln = ln
		n.logger.Info("listening", "addr", ln.Addr().String())
	}

	if err := n.Go(ctx, n.run); err != nil {
		if n.ln != nil {
			_ = n.ln.Close()
			n.ln = nil
		}
		return err
	}
	return nil
}

// Stop requests a cooperative stop and closes the live connection so a
// blocked payload read is released immediately.
func (n *SourceSink) Stop() {
	n.Runner.Stop()
	n.closeConn()
}

// Addr returns the bound listener address (server role, after Start).
// Useful when binding to port 0.
func (n *SourceSink) Addr() net.Addr {
	if n.ln == nil {
		return nil
	}
	return n.ln.Addr()
}

func (n *SourceSink) run(ctx context.Context) {
	defer func() {
		n.closeConn()
		if n.ln != nil {
			_ = n.ln.Close()
		}
	}()

	first := true
	for {
		if !n.awaitConn() {
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
		// Client reconnects, server re-accepts.
	}
}

// awaitConn establishes the single peer connection, retrying at the poll
// cadence until success or stop. Returns false when a stop was requested.
func (n *SourceSink) awaitConn() bool {
	if n.cfg.Server {
		return n.acceptOne()
	}
	return n.dialOne()
}

func (n *SourceSink) acceptOne() bool {
	for {
		if n.ShouldStop() {
			return false
		}

		if tl, ok := n.ln.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(n.cfg.PollInterval))
		}
		conn, err := n.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if n.ShouldStop() {
				return false
			}
			n.logger.Warn("accept failed", "error", err)
			continue
		}

		n.setConn(conn)
		n.logger.Info("new tcp connection", "remote", conn.RemoteAddr().String())
		return true
	}
}

func (n *SourceSink) dialOne() bool {
	dialer := net.Dialer{Timeout: n.cfg.PollInterval}
	for {
		if n.ShouldStop() {
			return false
		}

		start := time.Now()
		conn, err := dialer.Dial("tcp", n.cfg.Addr)
		if err == nil {
			n.setConn(conn)
			n.logger.Info("established tcp connection", "remote", n.cfg.Addr)
			return true
		}

		// A refused dial returns fast; wait out the rest of the interval
		// so attempts repeat at the poll cadence.
		if rest := n.cfg.PollInterval - time.Since(start); rest > 0 {
			select {
			case <-n.Stopping():
				return false
			case <-time.After(rest):
			}
		}
	}
}

// readLoop reads framed messages from the current connection and
// publishes each complete one, until the peer disconnects, the stream
// desynchronizes, or a stop is requested.
func (n *SourceSink) readLoop() {
	conn := n.current()
	if conn == nil {
		return
	}

	hdrLen := n.cfg.Header.Len()
	hdr := make([]byte, hdrLen)
	fill := 0

	for {
		if n.ShouldStop() {
			return
		}

		if hdrLen > 0 && fill < hdrLen {
			_ = conn.SetReadDeadline(time.Now().Add(n.cfg.PollInterval))
			nr, err := conn.Read(hdr[fill:])
			fill += nr
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					// Waiting for a header is not an error; it is the
					// poll point where the stop flag gets observed.
					continue
				}
				if err != io.EOF && !n.ShouldStop() {
					n.logger.Debug("connection read failed", "error", err)
				}
				return
			}
			if fill < hdrLen {
				continue
			}
		}

		payLen, err := n.cfg.Header.PayloadLen(hdr[:hdrLen])
		if err != nil {
			// The stream position can no longer be trusted; drop the
			// connection and let the recovery path resynchronize.
			n.logger.Error("invalid message header", "error", err)
			n.metrics.Drop("invalid-header")
			return
		}
		if payLen < 0 || payLen > n.cfg.MaxPayload {
			n.logger.Error("payload length exceeds limit", "length", payLen, "limit", n.cfg.MaxPayload)
			n.metrics.Drop("oversize")
			return
		}

		payload := make([]byte, payLen)
		if payLen > 0 {
			// No deadline between header and payload: a slow sender must
			// not be mistaken for EOF. Stop unblocks this read by
			// closing the connection.
			_ = conn.SetReadDeadline(time.Time{})
			if _, err := io.ReadFull(conn, payload); err != nil {
				if !n.ShouldStop() {
					n.logger.Debug("payload read failed", "error", err)
				}
				return
			}
		}
		fill = 0

		item := payload
		if n.cfg.KeepHeader && hdrLen > 0 {
			item = make([]byte, 0, hdrLen+payLen)
			item = append(item, hdr...)
			item = append(item, payload...)
		}

		if n.metrics != nil {
			n.metrics.BytesReceived.Add(float64(hdrLen + payLen))
			n.metrics.ItemsPublished.Inc()
		}
		n.logger.Debug("received message", "bytes", len(item))
		n.PublishFrom(n, item)
	}
}

// Receive writes the item's raw bytes to the current peer connection. It
// runs on the publishing node's goroutine. Items are silently dropped
// when no peer is connected or the item is not a byte slice; no error is
// surfaced to the original publisher.
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
	if _, err := conn.Write(data); err != nil {
		// The read loop discovers the broken connection and recovers.
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

func (n *SourceSink) current() net.Conn {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn
}

func (n *SourceSink) setConn(conn net.Conn) {
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
		_ = conn.Close()
		if n.metrics != nil {
			n.metrics.ConnectionUp.Set(0)
		}
	}
}
