// Package flowgraph provides the building blocks to implement data
// processing software as a graph of concurrently executing nodes that
// communicate through the publisher/subscriber pattern.
//
// # Node roles
//
// There are four kinds of nodes in a graph:
//
//   - Sources only publish items to subscribing nodes (socket readers,
//     HTTP ingestion endpoints, etc).
//   - Sinks only consume items; they are the end points of the graph
//     (loggers, sockets used to send data, etc).
//   - Source/sinks both publish and consume, but the two directions are
//     independent (a socket used to send and receive data).
//   - Intermediate nodes consume and re-publish items (buffering,
//     filtering, transforming).
//
// # Concurrency contract
//
// Publish delivers an item synchronously to every subscriber on the
// publishing node's goroutine. A subscriber registered with more than one
// publisher is invoked concurrently and must make Receive safe for
// concurrent use; this is a documented caller obligation, not enforced by
// the type system. When that is not possible, or a subscriber is slow, a
// queue.Node can be placed in front of it to move delivery onto the queue
// node's own goroutine.
//
// Thread-owning nodes follow a cooperative stop protocol: Stop sets a
// flag (and unblocks any pending network read), the node's goroutine
// observes it within one poll interval, and Join waits for the goroutine
// to exit. Graph wires these together, starting nodes in registration
// order and stopping them in reverse.
package flowgraph
