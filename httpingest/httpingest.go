// Package httpingest provides a source node fed by HTTP POST requests.
//
// The node runs an HTTP server accepting POST / with a JSON body of the
// form {"data": "<hex bytes>"}; spaces between byte values are allowed.
// Decoded payloads are buffered and the node's goroutine drains the
// buffer, publishing each payload to subscribers. Handler goroutines
// never touch subscribers directly, keeping the one-goroutine publish
// contract intact.
package httpingest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/streamkit/flowgraph"
	"github.com/streamkit/flowgraph/buffer"
	"github.com/streamkit/flowgraph/errors"
	"github.com/streamkit/flowgraph/metric"
)

const (
	defaultCapacity     = 1024
	defaultPollInterval = time.Second
	defaultMaxBody      = 1 << 20 // 1 MiB
)

// Config holds configuration for an HTTP ingestion source.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string

	// Capacity bounds the number of decoded payloads awaiting
	// publication. Defaults to 1024; the handler rejects with 503 when
	// full.
	Capacity int

	// PollInterval bounds each buffer wait so stop requests stay
	// observable. Defaults to 1s.
	PollInterval time.Duration

	// MaxBody caps the request body size in bytes. Defaults to 1 MiB.
	MaxBody int64
}

// Validate checks the listen configuration.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "httpingest", "Validate", "empty listen address")
	}
	if c.Capacity < 0 || c.PollInterval < 0 || c.MaxBody < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "httpingest", "Validate", "negative capacity, interval or body limit")
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
	if out.MaxBody == 0 {
		out.MaxBody = defaultMaxBody
	}
	return out
}

// Deps holds runtime dependencies for an HTTP ingestion source.
type Deps struct {
	Name            string
	Config          Config
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Source accepts POSTed payloads over HTTP and publishes them to
// subscribers from its own goroutine.
type Source struct {
	*flowgraph.Runner
	flowgraph.Fanout

	name   string
	cfg    Config
	logger *slog.Logger

	buf *buffer.FIFO[[]byte]
	srv *http.Server
	ln  net.Listener

	metrics *metric.NodeMetrics
}

var _ flowgraph.Publisher = (*Source)(nil)
var _ flowgraph.Runnable = (*Source)(nil)

// New creates an HTTP ingestion source.
func New(deps Deps) (*Source, error) {
	if deps.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "httpingest", "New", "empty node name")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("node", deps.Name)
	}

	cfg := deps.Config.withDefaults()
	buf, err := buffer.New[[]byte](cfg.Capacity, buffer.WithOverflowPolicy[[]byte](buffer.DropNewest))
	if err != nil {
		return nil, err
	}

	n := &Source{
		Runner:  flowgraph.NewRunner(),
		name:    deps.Name,
		cfg:     cfg,
		logger:  logger,
		buf:     buf,
		metrics: deps.MetricsRegistry.ForNode(deps.Name),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", n.handleIngest)
	n.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return n, nil
}

// Name returns the node name.
func (n *Source) Name() string { return n.name }

// Addr returns the bound listener address (after Start). Useful when
// binding to port 0.
func (n *Source) Addr() net.Addr {
	if n.ln == nil {
		return nil
	}
	return n.ln.Addr()
}

// Start binds the listener, starts serving, and spawns the node's
// goroutine.
func (n *Source) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", n.cfg.Addr)
	if err != nil {
		return errors.WrapFatal(err, n.name, "Start", "bind "+n.cfg.Addr)
	}
	n.ln = ln

	if err := n.Go(ctx, n.run); err != nil {
		_ = ln.Close()
		n.ln = nil
		return err
	}

	go func() {
		if serr := n.srv.Serve(ln); serr != nil && serr != http.ErrServerClosed {
			n.logger.Error("ingest server failed", "error", serr)
		}
	}()
	n.logger.Info("ingest server listening", "addr", ln.Addr().String())
	return nil
}

func (n *Source) run(context.Context) {
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = n.srv.Shutdown(shutdownCtx)
		n.buf.Close()
	}()

	for {
		if n.ShouldStop() {
			return
		}
		data, ok := n.buf.Read(n.cfg.PollInterval)
		if !ok {
			continue
		}
		if n.metrics != nil {
			n.metrics.BytesReceived.Add(float64(len(data)))
			n.metrics.ItemsPublished.Inc()
		}
		n.logger.Debug("ingested payload", "bytes", len(data))
		n.PublishFrom(n, data)
	}
}

type ingestRequest struct {
	Data string `json:"data"`
}

func (n *Source) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ingestRequest
	body := http.MaxBytesReader(w, r.Body, n.cfg.MaxBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		n.metrics.Drop("bad-json")
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	data, err := hex.DecodeString(strings.ReplaceAll(req.Data, " ", ""))
	if err != nil {
		n.metrics.Drop("bad-hex")
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}

	// Full buffer means the consumer is behind; reject rather than
	// silently drop. A write racing past this check is discarded by the
	// DropNewest policy, never blocked on.
	if n.buf.Len() >= n.buf.Cap() {
		n.metrics.Drop("overflow")
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
		return
	}
	if err := n.buf.Write(data); err != nil {
		n.metrics.Drop("closed")
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
