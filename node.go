package flowgraph

import (
	"context"
	"sync"
	"time"
)

// Item is an opaque unit of data flowing through the graph. Network-backed
// nodes produce and consume []byte items; the core places no other
// interpretation on an item's contents.
type Item any

// Node is a named participant in a processing graph. Names must be unique
// within a Graph and are immutable after construction.
type Node interface {
	Name() string
}

// Subscriber receives items from publishers it has been registered with.
type Subscriber interface {
	Node

	// Receive is invoked by a publisher for each published item, on the
	// publisher's goroutine. A subscriber registered with more than one
	// publisher must make Receive safe for concurrent invocation.
	Receive(from Publisher, item Item)
}

// Publisher is a node that notifies registered subscribers of new items.
// Subscribe is the sole operation an external collaborator needs to wire a
// node into a graph; all topology mutation must complete before the graph
// is executed.
type Publisher interface {
	Node

	// Subscribe registers a subscriber for future notifications.
	// Re-subscribing the same subscriber is a no-op.
	Subscribe(sub Subscriber)
}

// Runnable is a node that owns a goroutine. Start spawns it, Stop requests
// a cooperative stop, and Join waits for the goroutine to exit. Once Join
// returns nil, no further Publish calls originate from the node.
type Runnable interface {
	Node
	Start(ctx context.Context) error
	Stop()
	Join(timeout time.Duration) error
}

// Fanout implements the publisher half of a node: an identity-based
// subscriber set and synchronous delivery to every member. Concrete nodes
// embed Fanout and call PublishFrom with themselves as the originator.
//
// The subscriber set is guarded by a lock so that wiring done from the
// owning goroutine and delivery from another cannot race, but delivery
// itself offers no isolation: a panic or a long block in one subscriber's
// Receive stalls delivery to the rest and propagates to the publishing
// goroutine.
type Fanout struct {
	mu   sync.RWMutex
	subs []Subscriber
}

// Subscribe registers sub for future notifications. Registration is
// idempotent: a subscriber already present (by identity) is not added
// again. The iteration order over subscribers is unspecified.
func (f *Fanout) Subscribe(sub Subscriber) {
	if sub == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.subs {
		if s == sub {
			return
		}
	}
	f.subs = append(f.subs, sub)
}

// Subscribers returns a snapshot of the current subscriber set.
func (f *Fanout) Subscribers() []Subscriber {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Subscriber, len(f.subs))
	copy(out, f.subs)
	return out
}

// PublishFrom synchronously invokes Receive(from, item) on every
// registered subscriber, on the caller's goroutine. Each call completes
// delivery to all subscribers before returning.
func (f *Fanout) PublishFrom(from Publisher, item Item) {
	f.mu.RLock()
	subs := f.subs
	f.mu.RUnlock()

	for _, sub := range subs {
		sub.Receive(from, item)
	}
}
