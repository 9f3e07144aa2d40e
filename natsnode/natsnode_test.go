package natsnode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit/flowgraph"
	"github.com/streamkit/flowgraph/errors"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"empty name", Deps{Config: Config{URL: "nats://localhost:4222", SubscribeSubject: "in"}}},
		{"no subjects", Deps{Name: "nats", Config: Config{URL: "nats://localhost:4222"}}},
		{"no connection source", Deps{Name: "nats", Config: Config{SubscribeSubject: "in"}}},
		{"negative wait", Deps{Name: "nats", Config: Config{
			URL: "nats://localhost:4222", SubscribeSubject: "in", ReconnectWait: -time.Second,
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.deps)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err) || errors.IsFatal(err))
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	n, err := New(Deps{Name: "nats", Config: Config{
		URL:              "nats://localhost:4222",
		SubscribeSubject: "in",
		PublishSubject:   "out",
	}})
	require.NoError(t, err)
	assert.Equal(t, "nats", n.Name())
	assert.Equal(t, defaultReconnectWait, n.cfg.ReconnectWait)
	assert.Equal(t, defaultPendingLimit, n.cfg.PendingLimit)
}

func TestReceiveDropsBeforeStart(t *testing.T) {
	n, err := New(Deps{Name: "nats", Config: Config{
		URL:            "nats://localhost:4222",
		PublishSubject: "out",
	}})
	require.NoError(t, err)

	// Not started: no connection, items vanish without error or panic.
	src := flowgraph.NewPassThrough("src")
	n.Receive(src, []byte("nobody home"))
	n.Receive(src, 42)
}
