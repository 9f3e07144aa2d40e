package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit/flowgraph"
	"github.com/streamkit/flowgraph/buffer"
	"github.com/streamkit/flowgraph/errors"
)

type collectSink struct {
	name string
	mu   sync.Mutex
	got  []flowgraph.Item
	seen chan struct{}
}

func newCollectSink(name string) *collectSink {
	return &collectSink{name: name, seen: make(chan struct{}, 1024)}
}

func (s *collectSink) Name() string { return s.name }

func (s *collectSink) Receive(_ flowgraph.Publisher, item flowgraph.Item) {
	s.mu.Lock()
	s.got = append(s.got, item)
	s.mu.Unlock()
	s.seen <- struct{}{}
}

func (s *collectSink) items() []flowgraph.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]flowgraph.Item, len(s.got))
	copy(out, s.got)
	return out
}

func (s *collectSink) waitFor(t *testing.T, count int, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for i := 0; i < count; i++ {
		select {
		case <-s.seen:
		case <-deadline:
			t.Fatalf("timed out waiting for item %d of %d", i+1, count)
		}
	}
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		deps    Deps
		wantErr bool
	}{
		{"empty name", Deps{Name: ""}, true},
		{"negative capacity", Deps{Name: "q", Config: Config{Capacity: -1}}, true},
		{"negative poll", Deps{Name: "q", Config: Config{PollInterval: -time.Second}}, true},
		{"defaults", Deps{Name: "q"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := New(tt.deps)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err) || errors.IsFatal(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "q", n.Name())
		})
	}
}

func TestQueueHandsOffToSubscribers(t *testing.T) {
	n, err := New(Deps{Name: "q", Config: Config{PollInterval: 10 * time.Millisecond}})
	require.NoError(t, err)

	sink := newCollectSink("sink")
	n.Subscribe(sink)

	require.NoError(t, n.Start(context.Background()))
	defer func() {
		n.Stop()
		require.NoError(t, n.Join(time.Second))
	}()

	src := flowgraph.NewPassThrough("src")
	for i := 0; i < 10; i++ {
		n.Receive(src, i)
	}

	sink.waitFor(t, 10, 2*time.Second)
	assert.Equal(t, []flowgraph.Item{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sink.items())
}

func TestQueuePreservesPerProducerOrder(t *testing.T) {
	n, err := New(Deps{Name: "q", Config: Config{PollInterval: 10 * time.Millisecond}})
	require.NoError(t, err)

	sink := newCollectSink("sink")
	n.Subscribe(sink)

	require.NoError(t, n.Start(context.Background()))
	defer func() {
		n.Stop()
		require.NoError(t, n.Join(time.Second))
	}()

	const producers = 4
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			src := flowgraph.NewPassThrough(fmt.Sprintf("src-%d", p))
			for i := 0; i < perProducer; i++ {
				n.Receive(src, [2]int{p, i})
			}
		}(p)
	}
	wg.Wait()

	sink.waitFor(t, producers*perProducer, 5*time.Second)

	// Each producer's items arrive in that producer's program order.
	next := make([]int, producers)
	for _, raw := range sink.items() {
		v := raw.([2]int)
		assert.Equal(t, next[v[0]], v[1], "producer %d out of order", v[0])
		next[v[0]]++
	}
	for p := 0; p < producers; p++ {
		assert.Equal(t, perProducer, next[p])
	}
}

func TestQueueDropOldestUnderOverload(t *testing.T) {
	n, err := New(Deps{Name: "q", Config: Config{
		Capacity:     4,
		Policy:       buffer.DropOldest,
		PollInterval: 10 * time.Millisecond,
	}})
	require.NoError(t, err)

	src := flowgraph.NewPassThrough("src")
	// Node not started: queue fills, oldest items fall out.
	for i := 0; i < 10; i++ {
		n.Receive(src, i)
	}

	sink := newCollectSink("sink")
	n.Subscribe(sink)
	require.NoError(t, n.Start(context.Background()))
	defer func() {
		n.Stop()
		require.NoError(t, n.Join(time.Second))
	}()

	sink.waitFor(t, 4, 2*time.Second)
	assert.Equal(t, []flowgraph.Item{6, 7, 8, 9}, sink.items())
}

func TestQueueStopIsPromptAndIdempotent(t *testing.T) {
	n, err := New(Deps{Name: "q", Config: Config{PollInterval: 20 * time.Millisecond}})
	require.NoError(t, err)

	require.NoError(t, n.Start(context.Background()))

	start := time.Now()
	n.Stop()
	n.Stop()
	require.NoError(t, n.Join(time.Second))

	// Exit within a couple of poll intervals.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, flowgraph.StateStopped, n.State())
}
