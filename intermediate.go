package flowgraph

// PassThrough is an intermediate node that re-publishes every received
// item unchanged to its own subscribers. It is the default fan-in/fan-out
// building block; nodes that need different behavior implement their own
// Receive instead.
type PassThrough struct {
	Fanout
	name string
}

// NewPassThrough creates a pass-through intermediate node.
func NewPassThrough(name string) *PassThrough {
	return &PassThrough{name: name}
}

// Name returns the node name.
func (p *PassThrough) Name() string { return p.name }

// Receive re-publishes the item unchanged.
func (p *PassThrough) Receive(_ Publisher, item Item) {
	p.PublishFrom(p, item)
}

// Filter is an intermediate node that forwards only the items for which
// the keep predicate returns true.
type Filter struct {
	Fanout
	name string
	keep func(Item) bool
}

// NewFilter creates a filter node. A nil predicate keeps everything.
func NewFilter(name string, keep func(Item) bool) *Filter {
	return &Filter{name: name, keep: keep}
}

// Name returns the node name.
func (f *Filter) Name() string { return f.name }

// Receive forwards the item when the predicate accepts it.
func (f *Filter) Receive(_ Publisher, item Item) {
	if f.keep == nil || f.keep(item) {
		f.PublishFrom(f, item)
	}
}

// Transform is an intermediate node that applies a mapping function to
// each item before forwarding. A nil result drops the item.
type Transform struct {
	Fanout
	name string
	fn   func(Item) Item
}

// NewTransform creates a transformation node. A nil function forwards
// items unchanged.
func NewTransform(name string, fn func(Item) Item) *Transform {
	return &Transform{name: name, fn: fn}
}

// Name returns the node name.
func (t *Transform) Name() string { return t.name }

// Receive transforms and forwards the item, dropping nil results.
func (t *Transform) Receive(_ Publisher, item Item) {
	out := item
	if t.fn != nil {
		out = t.fn(item)
	}
	if out != nil {
		t.PublishFrom(t, out)
	}
}
