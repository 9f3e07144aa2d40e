package tcp

import (
	"encoding/binary"
	"fmt"

	"github.com/streamkit/flowgraph/errors"
)

// Header is the pluggable framing strategy for the TCP stream: a fixed
// header length and a pure function from raw header bytes to the number
// of payload bytes that follow. Implementations must be safe for
// concurrent use (they are called from the node's read goroutine only,
// but must not carry mutable state between calls).
type Header interface {
	// Len returns the fixed header length in bytes. It must be >= 0 and
	// constant for the lifetime of the connection. A zero length means
	// the strategy frames without header bytes (PayloadLen is called
	// with an empty slice, as FixedLen does).
	Len() int

	// PayloadLen maps the raw header bytes to the payload length in
	// bytes, excluding the header itself.
	PayloadLen(header []byte) (int, error)
}

// LengthField is a Header that extracts an unsigned, fixed-width integer
// length field from the header at a byte offset, using an explicit byte
// order. It covers the common "length-prefixed message" wire formats.
type LengthField struct {
	// HeaderLen is the total header length in bytes.
	HeaderLen int

	// Offset is the byte offset of the length field within the header.
	Offset int

	// Width is the length field width in bytes: 1, 2, 4 or 8.
	Width int

	// Order is the byte order of the length field, e.g. binary.BigEndian.
	Order binary.ByteOrder
}

var _ Header = LengthField{}

// Validate checks the field geometry against the header length.
func (h LengthField) Validate() error {
	if h.HeaderLen <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"LengthField", "Validate", "header length must be positive")
	}
	switch h.Width {
	case 1, 2, 4, 8:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: width %d", errors.ErrInvalidConfig, h.Width),
			"LengthField", "Validate", "length field width")
	}
	if h.Offset < 0 || h.Offset+h.Width > h.HeaderLen {
		return errors.WrapInvalid(
			fmt.Errorf("%w: offset %d width %d in %d-byte header",
				errors.ErrInvalidConfig, h.Offset, h.Width, h.HeaderLen),
			"LengthField", "Validate", "length field bounds")
	}
	if h.Order == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"LengthField", "Validate", "byte order not set")
	}
	return nil
}

// Len returns the fixed header length.
func (h LengthField) Len() int { return h.HeaderLen }

// PayloadLen decodes the length field from the header bytes.
func (h LengthField) PayloadLen(header []byte) (int, error) {
	if len(header) != h.HeaderLen {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: got %d bytes, want %d", errors.ErrInvalidHeader, len(header), h.HeaderLen),
			"LengthField", "PayloadLen", "header length check")
	}

	field := header[h.Offset : h.Offset+h.Width]
	var n uint64
	switch h.Width {
	case 1:
		n = uint64(field[0])
	case 2:
		n = uint64(h.Order.Uint16(field))
	case 4:
		n = uint64(h.Order.Uint32(field))
	case 8:
		n = h.Order.Uint64(field)
	default:
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: width %d", errors.ErrInvalidConfig, h.Width),
			"LengthField", "PayloadLen", "length field width")
	}

	if n > uint64(maxInt) {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: %d", errors.ErrPayloadTooBig, n),
			"LengthField", "PayloadLen", "length field range")
	}
	return int(n), nil
}

// FixedLen is a Header for wire formats where every message has the same
// payload size. HeaderLen may be zero, in which case the stream is framed
// purely by the constant size.
type FixedLen struct {
	// HeaderLen is the header length in bytes (may be 0).
	HeaderLen int

	// PayloadSize is the constant payload size in bytes.
	PayloadSize int
}

var _ Header = FixedLen{}

// Validate checks the configured sizes.
func (h FixedLen) Validate() error {
	if h.HeaderLen < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"FixedLen", "Validate", "negative header length")
	}
	if h.PayloadSize <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"FixedLen", "Validate", "payload size must be positive")
	}
	return nil
}

// Len returns the fixed header length.
func (h FixedLen) Len() int { return h.HeaderLen }

// PayloadLen returns the constant payload size.
func (h FixedLen) PayloadLen([]byte) (int, error) {
	return h.PayloadSize, nil
}

const maxInt = int(^uint(0) >> 1)
