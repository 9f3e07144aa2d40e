// Package main implements flowrelay, a small relay pipeline: framed TCP
// messages and HTTP-posted payloads are queued and forwarded as UDP
// datagrams, with a logging tap on the TCP source and a Prometheus
// metrics endpoint.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamkit/flowgraph"
	"github.com/streamkit/flowgraph/httpingest"
	"github.com/streamkit/flowgraph/logger"
	"github.com/streamkit/flowgraph/metric"
	"github.com/streamkit/flowgraph/queue"
	"github.com/streamkit/flowgraph/tcp"
	"github.com/streamkit/flowgraph/udp"
)

const appName = "flowrelay"

type cliConfig struct {
	tcpAddr     string
	httpAddr    string
	udpDest     string
	metricsPort int
	logLevel    string
	keepHeader  bool
}

func main() {
	if err := run(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg cliConfig
	flag.StringVar(&cfg.tcpAddr, "tcp-addr", "0.0.0.0:1998", "TCP server source listen address")
	flag.StringVar(&cfg.httpAddr, "http-addr", "0.0.0.0:5002", "HTTP ingestion listen address")
	flag.StringVar(&cfg.udpDest, "udp-dest", "127.0.0.1:6544", "UDP sink destination address")
	flag.IntVar(&cfg.metricsPort, "metrics-port", 9090, "Prometheus metrics port")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.keepHeader, "keep-header", true, "forward TCP header bytes with each payload")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.logLevel, err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	metricsServer := metric.NewServer(cfg.metricsPort, "/metrics", registry)
	go func() {
		if err := metricsServer.Start(); err != nil {
			log.Error("metrics server failed", "error", err)
		}
	}()
	defer func() { _ = metricsServer.Stop() }()

	// Wire format on the TCP side: u16 sequence number followed by a u8
	// payload length, big endian.
	header := tcp.LengthField{HeaderLen: 3, Offset: 2, Width: 1, Order: binary.BigEndian}

	tcpSource, err := tcp.New(tcp.Deps{
		Name: "tcp-source",
		Config: tcp.Config{
			Addr:       cfg.tcpAddr,
			Server:     true,
			Header:     header,
			KeepHeader: cfg.keepHeader,
		},
		MetricsRegistry: registry,
		Logger:          log.With("node", "tcp-source"),
	})
	if err != nil {
		return err
	}

	httpSource, err := httpingest.New(httpingest.Deps{
		Name:            "http-source",
		Config:          httpingest.Config{Addr: cfg.httpAddr},
		MetricsRegistry: registry,
		Logger:          log.With("node", "http-source"),
	})
	if err != nil {
		return err
	}

	relayQueue, err := queue.New(queue.Deps{
		Name:            "relay-queue",
		MetricsRegistry: registry,
		Logger:          log.With("node", "relay-queue"),
	})
	if err != nil {
		return err
	}

	udpSink, err := udp.New(udp.Deps{
		Name:            "udp-sink",
		Config:          udp.Config{SendAddr: cfg.udpDest},
		MetricsRegistry: registry,
		Logger:          log.With("node", "udp-sink"),
	})
	if err != nil {
		return err
	}

	tap, err := logger.New(logger.Deps{
		Name:   "tcp-tap",
		Level:  slog.LevelInfo,
		Logger: log.With("node", "tcp-tap"),
	})
	if err != nil {
		return err
	}

	tcpSource.Subscribe(relayQueue)
	tcpSource.Subscribe(tap)
	httpSource.Subscribe(relayQueue)
	relayQueue.Subscribe(udpSink)

	g := flowgraph.NewGraph(appName, log.With("graph", appName))
	for _, n := range []flowgraph.Node{tcpSource, httpSource, relayQueue, udpSink, tap} {
		if err := g.Add(n); err != nil {
			return err
		}
	}

	if err := g.Execute(ctx); err != nil {
		return err
	}
	log.Info("pipeline running",
		"tcp", cfg.tcpAddr, "http", cfg.httpAddr, "udp_dest", cfg.udpDest,
		"metrics", metricsServer.Address())

	<-ctx.Done()
	log.Info("shutting down")
	return g.Stop(10 * time.Second)
}
