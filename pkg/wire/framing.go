package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Framing selects how a message body is length-prefixed.
type Framing uint8

const (
	// FramingVarint prefixes the body with a varint length.
	FramingVarint Framing = iota
	// FramingUint16 prefixes the body with a big-endian 16-bit length.
	FramingUint16
)

func (f Framing) String() string {
	switch f {
	case FramingVarint:
		return "varint"
	case FramingUint16:
		return "uint16"
	default:
		return fmt.Sprintf("framing(%d)", uint8(f))
	}
}

// AppendBody appends the length prefix and body to dst.
func (f Framing) AppendBody(dst, body []byte) ([]byte, error) {
	switch f {
	case FramingUint16:
		if len(body) > math.MaxUint16 {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(body), math.MaxUint16)
		}
		dst = binary.BigEndian.AppendUint16(dst, uint16(len(body)))
	default:
		if len(body) > DefaultMaxAllocation {
			return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(body))
		}
		dst = AppendVarint(dst, uint64(len(body)))
	}
	return append(dst, body...), nil
}

// ReadBody reads one framed body from r and returns a reader over it.
func (f Framing) ReadBody(r *Reader) (*Reader, error) {
	var size uint64
	switch f {
	case FramingUint16:
		n, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		size = uint64(n)
	default:
		n, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		size = n
	}
	body, err := r.ReadFull(size)
	if err != nil {
		return nil, err
	}
	return NewBytesReader(body), nil
}

// DecodeBody reads one framed body and hands it to decode. The body must be
// consumed exactly.
func DecodeBody(r *Reader, f Framing, decode func(*Reader) error) error {
	body, err := f.ReadBody(r)
	if err != nil {
		return err
	}
	if err := decode(body); err != nil {
		return err
	}
	if rem := body.Remaining(); rem != 0 {
		return fmt.Errorf("%w: %d unread", ErrTrailingBytes, rem)
	}
	return nil
}
