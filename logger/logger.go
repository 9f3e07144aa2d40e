// Package logger provides a sink node that logs each incoming item.
// Useful as a tap on any publisher during development and operations.
package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streamkit/flowgraph"
	"github.com/streamkit/flowgraph/errors"
)

// Formatter converts an item to its log representation. The default
// prints byte slices as hex and everything else with %v.
type Formatter func(item flowgraph.Item) string

// DefaultFormatter renders byte slices as space-separated hex pairs and
// any other item with the fmt default verb.
func DefaultFormatter(item flowgraph.Item) string {
	if data, ok := item.([]byte); ok {
		return fmt.Sprintf("% x", data)
	}
	return fmt.Sprintf("%v", item)
}

// Deps holds dependencies for a logging sink node.
type Deps struct {
	Name      string
	Level     slog.Level   // level items are logged at
	Logger    *slog.Logger // optional
	Formatter Formatter    // optional, DefaultFormatter when nil
}

// Node logs every received item with the publisher's name. It is a pure
// sink with no goroutine of its own; logging happens on the publishing
// node's goroutine and must therefore stay cheap.
type Node struct {
	name   string
	level  slog.Level
	logger *slog.Logger
	format Formatter
}

var _ flowgraph.Subscriber = (*Node)(nil)

// New creates a logging sink node.
func New(deps Deps) (*Node, error) {
	if deps.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "logger", "New", "empty node name")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("node", deps.Name)
	}
	format := deps.Formatter
	if format == nil {
		format = DefaultFormatter
	}

	return &Node{
		name:   deps.Name,
		level:  deps.Level,
		logger: logger,
		format: format,
	}, nil
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Receive logs the item at the configured level.
func (n *Node) Receive(from flowgraph.Publisher, item flowgraph.Item) {
	n.logger.Log(context.Background(), n.level, "item", "from", from.Name(), "item", n.format(item))
}
