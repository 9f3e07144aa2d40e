package httpingest

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit/flowgraph"
)

type collectSink struct {
	name string
	mu   sync.Mutex
	got  [][]byte
	seen chan struct{}
}

func newCollectSink(name string) *collectSink {
	return &collectSink{name: name, seen: make(chan struct{}, 64)}
}

func (s *collectSink) Name() string { return s.name }

func (s *collectSink) Receive(_ flowgraph.Publisher, item flowgraph.Item) {
	s.mu.Lock()
	s.got = append(s.got, item.([]byte))
	s.mu.Unlock()
	s.seen <- struct{}{}
}

func (s *collectSink) items() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.got))
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

func startSource(t *testing.T) *Source {
	t.Helper()
	n, err := New(Deps{Name: "ingest", Config: Config{
		Addr:         "127.0.0.1:0",
		PollInterval: 20 * time.Millisecond,
	}})
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() {
		n.Stop()
		require.NoError(t, n.Join(2*time.Second))
	})
	return n
}

func post(t *testing.T, n *Source, body string) *http.Response {
	t.Helper()
	url := fmt.Sprintf("http://%s/", n.Addr().String())
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Deps{Name: "ingest"})
	require.Error(t, err, "empty address")

	_, err = New(Deps{Config: Config{Addr: "127.0.0.1:0"}})
	require.Error(t, err, "empty name")

	_, err = New(Deps{Name: "ingest", Config: Config{Addr: "127.0.0.1:0", Capacity: -1}})
	require.Error(t, err)
}

func TestPostPublishesDecodedPayload(t *testing.T) {
	n := startSource(t)
	sink := newCollectSink("sink")
	n.Subscribe(sink)

	resp := post(t, n, `{"data": "48 65 6c 6c 6f"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	sink.waitFor(t, 1, 2*time.Second)
	assert.Equal(t, [][]byte{[]byte("Hello")}, sink.items())
}

func TestPostAcceptsUnspacedHex(t *testing.T) {
	n := startSource(t)
	sink := newCollectSink("sink")
	n.Subscribe(sink)

	resp := post(t, n, `{"data": "deadbeef"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	sink.waitFor(t, 1, 2*time.Second)
	assert.Equal(t, [][]byte{{0xde, 0xad, 0xbe, 0xef}}, sink.items())
}

func TestPostRejectsMalformedInput(t *testing.T) {
	n := startSource(t)
	sink := newCollectSink("sink")
	n.Subscribe(sink)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"odd hex digits", `{"data": "abc"}`},
		{"non-hex characters", `{"data": "zz zz"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, n, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	// Nothing malformed reaches subscribers.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, sink.items())
}

func TestGetIsRejected(t *testing.T) {
	n := startSource(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/", n.Addr().String()))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStopShutsServerDown(t *testing.T) {
	n := startSource(t)
	addr := n.Addr().String()

	n.Stop()
	require.NoError(t, n.Join(2*time.Second))

	_, err := http.Post(fmt.Sprintf("http://%s/", addr), "application/json",
		bytes.NewBufferString(`{"data": "00"}`))
	assert.Error(t, err)
}
