package natsnode

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit/flowgraph"
)

// natsURL returns the server URL for integration tests, or skips when
// no server is available.
func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("set NATS_URL to run NATS integration tests")
	}
	return url
}

type collectSink struct {
	name string
	mu   sync.Mutex
	got  [][]byte
	seen chan struct{}
}

func (s *collectSink) Name() string { return s.name }

func (s *collectSink) Receive(_ flowgraph.Publisher, item flowgraph.Item) {
	s.mu.Lock()
	s.got = append(s.got, item.([]byte))
	s.mu.Unlock()
	s.seen <- struct{}{}
}

func TestIntegrationSubjectRoundTrip(t *testing.T) {
	url := natsURL(t)

	n, err := New(Deps{Name: "bridge", Config: Config{
		URL:              url,
		SubscribeSubject: "flowgraph.test.in",
		PublishSubject:   "flowgraph.test.out",
	}})
	require.NoError(t, err)

	sink := &collectSink{name: "sink", seen: make(chan struct{}, 16)}
	n.Subscribe(sink)

	require.NoError(t, n.Start(context.Background()))
	defer func() {
		n.Stop()
		require.NoError(t, n.Join(2*time.Second))
	}()

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	outbound, err := nc.SubscribeSync("flowgraph.test.out")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	// Subject -> graph.
	require.NoError(t, nc.Publish("flowgraph.test.in", []byte("inbound")))
	select {
	case <-sink.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
	sink.mu.Lock()
	assert.Equal(t, [][]byte{[]byte("inbound")}, sink.got)
	sink.mu.Unlock()

	// Graph -> subject.
	src := flowgraph.NewPassThrough("src")
	n.Receive(src, []byte("outbound"))
	msg, err := outbound.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("outbound"), msg.Data)
}
