package flowgraph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures every received item. Receive is safe for
// concurrent invocation so it can be wired to multiple publishers.
type recordingSink struct {
	name string
	mu   sync.Mutex
	got  []Item
	from []string
}

func newRecordingSink(name string) *recordingSink {
	return &recordingSink{name: name}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Receive(from Publisher, item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, item)
	s.from = append(s.from, from.Name())
}

func (s *recordingSink) items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.got))
	copy(out, s.got)
	return out
}

func TestFanoutDeliversToEverySubscriberExactlyOnce(t *testing.T) {
	pub := NewPassThrough("pub")

	const n = 7
	sinks := make([]*recordingSink, n)
	for i := range sinks {
		sinks[i] = newRecordingSink(fmt.Sprintf("sink-%d", i))
		pub.Subscribe(sinks[i])
	}

	pub.PublishFrom(pub, []byte("hello"))

	for _, s := range sinks {
		require.Len(t, s.items(), 1, "subscriber %s", s.Name())
		assert.Equal(t, []byte("hello"), s.items()[0])
	}
}

func TestFanoutSubscribeIsIdempotent(t *testing.T) {
	pub := NewPassThrough("pub")
	sink := newRecordingSink("sink")

	pub.Subscribe(sink)
	pub.Subscribe(sink)
	pub.Subscribe(sink)

	assert.Len(t, pub.Subscribers(), 1)

	pub.PublishFrom(pub, []byte("once"))
	assert.Len(t, sink.items(), 1, "re-subscribing must not cause double delivery")
}

func TestFanoutIgnoresNilSubscriber(t *testing.T) {
	pub := NewPassThrough("pub")
	pub.Subscribe(nil)
	assert.Empty(t, pub.Subscribers())

	// Publishing with no subscribers is a no-op, not a panic.
	pub.PublishFrom(pub, "item")
}

func TestPassThroughForwardsUnchanged(t *testing.T) {
	mid := NewPassThrough("mid")
	sink := newRecordingSink("sink")
	mid.Subscribe(sink)

	mid.Receive(mid, []byte{0x01, 0x02})

	require.Len(t, sink.items(), 1)
	assert.Equal(t, []byte{0x01, 0x02}, sink.items()[0])
	assert.Equal(t, "mid", sink.from[0], "pass-through publishes as itself")
}

func TestFilterDropsRejectedItems(t *testing.T) {
	filter := NewFilter("evens", func(item Item) bool {
		return item.(int)%2 == 0
	})
	sink := newRecordingSink("sink")
	filter.Subscribe(sink)

	for i := 0; i < 6; i++ {
		filter.Receive(filter, i)
	}

	assert.Equal(t, []Item{0, 2, 4}, sink.items())
}

func TestTransformMapsAndDropsNil(t *testing.T) {
	double := NewTransform("double", func(item Item) Item {
		v := item.(int)
		if v < 0 {
			return nil // drop negatives
		}
		return v * 2
	})
	sink := newRecordingSink("sink")
	double.Subscribe(sink)

	double.Receive(double, 3)
	double.Receive(double, -1)
	double.Receive(double, 5)

	assert.Equal(t, []Item{6, 10}, sink.items())
}

func TestSinkSubscribedToMultiplePublishers(t *testing.T) {
	a := NewPassThrough("a")
	b := NewPassThrough("b")
	sink := newRecordingSink("shared")
	a.Subscribe(sink)
	b.Subscribe(sink)

	var wg sync.WaitGroup
	const perPublisher = 100
	for _, pub := range []*PassThrough{a, b} {
		wg.Add(1)
		go func(p *PassThrough) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				p.Receive(p, i)
			}
		}(pub)
	}
	wg.Wait()

	assert.Len(t, sink.items(), 2*perPublisher)
}
