package object

import (
	"fmt"

	"github.com/QYUbit/moqsession/pkg/wire"
)

// Object status codes carried by zero-length objects.
const (
	StatusNormal   uint64 = 0x0
	StatusGroupEnd uint64 = 0x3
)

// Frame is one object of a group. End marks the group terminator and
// carries no payload.
type Frame struct {
	Payload []byte
	End     bool
}

// ReadFrame decodes the next object of a group opened with flags.
func ReadFrame(r *wire.Reader, flags Flags) (Frame, error) {
	delta, err := r.ReadVarint()
	if err != nil {
		return Frame{}, err
	}
	if delta != 0 {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedDelta, delta)
	}

	if flags.HasExtensions {
		n, err := r.ReadVarint()
		if err != nil {
			return Frame{}, err
		}
		// Extensions are skipped uninterpreted.
		if err := r.Discard(n); err != nil {
			return Frame{}, err
		}
	}

	size, err := r.ReadVarint()
	if err != nil {
		return Frame{}, err
	}
	if size > 0 {
		payload, err := r.ReadFull(size)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Payload: payload}, nil
	}

	status, err := r.ReadVarint()
	if err != nil {
		return Frame{}, err
	}
	if flags.HasEnd {
		if status == StatusNormal {
			return Frame{Payload: []byte{}}, nil
		}
	} else if status == StatusNormal || status == StatusGroupEnd {
		return Frame{End: true}, nil
	}
	return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedStatus, status)
}

// AppendFrame encodes f for a group opened with flags. With HasEnd the group
// is terminated by finishing the stream, so an End frame appends nothing.
// Without it an empty payload cannot be told from the terminator.
func AppendFrame(b []byte, f Frame, flags Flags) []byte {
	if f.End && flags.HasEnd {
		return b
	}
	b = wire.AppendVarint(b, 0)
	if flags.HasExtensions {
		b = wire.AppendVarint(b, 0)
	}
	switch {
	case f.End:
		b = wire.AppendVarint(b, 0)
		b = wire.AppendVarint(b, StatusGroupEnd)
	case len(f.Payload) == 0:
		b = wire.AppendVarint(b, 0)
		b = wire.AppendVarint(b, StatusNormal)
	default:
		b = wire.AppendBytes(b, f.Payload)
	}
	return b
}
