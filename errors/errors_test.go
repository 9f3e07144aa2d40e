package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "tcp-node", "readLoop", "header read")

	require.Error(t, err)
	assert.Equal(t, "tcp-node.readLoop: header read failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))

	assert.NoError(t, Wrap(nil, "tcp-node", "readLoop", "header read"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{"transient", WrapTransient(base, "n", "m", "a"), ErrorTransient},
		{"invalid", WrapInvalid(base, "n", "m", "a"), ErrorInvalid},
		{"fatal", WrapFatal(base, "n", "m", "a"), ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.Equal(t, tt.class, Classify(tt.err))

			var ce *ClassifiedError
			require.True(t, errors.As(tt.err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.True(t, errors.Is(tt.err, base), "wrapped error must unwrap to base")
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(ErrConnectionTimeout))
	assert.True(t, IsTransient(ErrConnectionLost))
	assert.True(t, IsTransient(ErrNoConnection))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: i/o timeout")))
	assert.False(t, IsTransient(ErrMissingHeader))
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(ErrMissingHeader))
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(WrapFatal(errors.New("x"), "n", "m", "a")))
	assert.False(t, IsFatal(ErrConnectionLost))
}

func TestIsInvalid(t *testing.T) {
	assert.False(t, IsInvalid(nil))
	assert.True(t, IsInvalid(ErrDuplicateNode))
	assert.True(t, IsInvalid(ErrInvalidHeader))
	assert.True(t, IsInvalid(WrapInvalid(errors.New("x"), "n", "m", "a")))
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	// Unknown errors default to transient so callers may retry.
	assert.Equal(t, ErrorTransient, Classify(errors.New("mystery")))
}
