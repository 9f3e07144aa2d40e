package flowgraph

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/streamkit/flowgraph/errors"
)

// Graph is an executable container of nodes. Nodes are unique by name;
// the subset that owns a goroutine ("runnable nodes") is kept in
// registration order, started in that order and stopped in reverse.
//
// Graph membership and subscriptions are wired once, before Execute, and
// are not safe to mutate concurrently with execution. Edge direction is
// not analyzed and cycles are not rejected; a cyclic wiring will run.
type Graph struct {
	name      string
	logger    *slog.Logger
	nodes     map[string]Node
	runnables []Runnable
}

// NewGraph creates an empty graph. A nil logger falls back to
// slog.Default.
func NewGraph(name string, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default().With("graph", name)
	}
	return &Graph{
		name:   name,
		logger: logger,
		nodes:  make(map[string]Node),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Add registers a node. Adding a node whose name is already present fails
// with ErrDuplicateNode and leaves the graph unchanged.
func (g *Graph) Add(n Node) error {
	if n == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Graph", "Add", "nil node")
	}

	if _, exists := g.nodes[n.Name()]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q in graph %q", errors.ErrDuplicateNode, n.Name(), g.name),
			"Graph", "Add", "name uniqueness check")
	}

	g.nodes[n.Name()] = n
	if r, ok := n.(Runnable); ok {
		g.runnables = append(g.runnables, r)
	}
	return nil
}

// HasNode reports whether a node with the given name is registered.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Len returns the number of registered nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Execute starts every runnable node in registration order. Subscriptions
// must be wired before calling Execute. If a node fails to start, the
// nodes already started are stopped (in reverse order) and the error is
// returned.
func (g *Graph) Execute(ctx context.Context) error {
	for i, node := range g.runnables {
		g.logger.Debug("starting node", "node", node.Name())
		if err := node.Start(ctx); err != nil {
			g.stopNodes(g.runnables[:i], 5*time.Second)
			return errors.Wrap(err, "Graph", "Execute",
				fmt.Sprintf("start node %q", node.Name()))
		}
	}
	return nil
}

// Stop requests a stop on every runnable node in reverse registration
// order, then joins each node in that same reverse order. Signaling all
// nodes before joining any bounds total shutdown latency to roughly the
// slowest node rather than the sum. The per-node join timeout applies to
// each join individually.
func (g *Graph) Stop(timeout time.Duration) error {
	return g.stopNodes(g.runnables, timeout)
}

func (g *Graph) stopNodes(nodes []Runnable, timeout time.Duration) error {
	for i := len(nodes) - 1; i >= 0; i-- {
		g.logger.Debug("stopping node", "node", nodes[i].Name())
		nodes[i].Stop()
	}

	var errs []error
	for i := len(nodes) - 1; i >= 0; i-- {
		node := nodes[i]
		if err := node.Join(timeout); err != nil {
			g.logger.Warn("node did not stop cleanly", "node", node.Name(), "error", err)
			errs = append(errs, errors.Wrap(err, "Graph", "Stop",
				fmt.Sprintf("join node %q", node.Name())))
			continue
		}
		g.logger.Debug("node stopped", "node", node.Name())
	}
	return stderrors.Join(errs...)
}
