// Package object decodes and encodes the one-way data streams that carry
// media: one group header followed by frames.
package object

import (
	"fmt"

	"github.com/QYUbit/moqsession/pkg/wire"
)

const (
	groupTypeBase uint64 = 0x10
	groupTypeMax  uint64 = 0x1f
)

const (
	flagExtensions     = 0x01
	flagSubgroup       = 0x02
	flagSubgroupObject = 0x04
	flagEnd            = 0x08
)

type Flags struct {
	HasExtensions     bool
	HasSubgroup       bool
	HasSubgroupObject bool
	HasEnd            bool
}

// StreamType returns the stream type tag carrying f.
func (f Flags) StreamType() uint64 {
	t := groupTypeBase
	if f.HasExtensions {
		t |= flagExtensions
	}
	if f.HasSubgroup {
		t |= flagSubgroup
	}
	if f.HasSubgroupObject {
		t |= flagSubgroupObject
	}
	if f.HasEnd {
		t |= flagEnd
	}
	return t
}

// hasSubgroupID reports whether a subgroup id follows the group id. Relays
// send it whenever either subgroup flag is set, not only for HasSubgroup.
func (f Flags) hasSubgroupID() bool {
	return f.HasSubgroup || f.HasSubgroupObject
}

// FlagsFromType decodes a stream type tag.
func FlagsFromType(t uint64) (Flags, error) {
	if t < groupTypeBase || t > groupTypeMax {
		return Flags{}, fmt.Errorf("%w: 0x%x", ErrUnsupportedGroupType, t)
	}
	return Flags{
		HasExtensions:     t&flagExtensions != 0,
		HasSubgroup:       t&flagSubgroup != 0,
		HasSubgroupObject: t&flagSubgroupObject != 0,
		HasEnd:            t&flagEnd != 0,
	}, nil
}

// GroupHeader opens every data stream.
type GroupHeader struct {
	RequestID  uint64
	GroupID    uint64
	SubgroupID uint64
	Priority   uint8
	Flags      Flags
}

func (h GroupHeader) Append(b []byte) ([]byte, error) {
	if h.Flags.HasSubgroup && h.Flags.HasSubgroupObject {
		return nil, ErrConflictingFlags
	}
	b = wire.AppendVarint(b, h.Flags.StreamType())
	b = wire.AppendVarint(b, h.RequestID)
	b = wire.AppendVarint(b, h.GroupID)
	if h.Flags.hasSubgroupID() {
		b = wire.AppendVarint(b, h.SubgroupID)
	}
	return append(b, h.Priority), nil
}

func ReadGroupHeader(r *wire.Reader) (GroupHeader, error) {
	var h GroupHeader

	t, err := r.ReadVarint()
	if err != nil {
		return h, err
	}
	if h.Flags, err = FlagsFromType(t); err != nil {
		return h, err
	}
	if h.Flags.HasSubgroup && h.Flags.HasSubgroupObject {
		return h, fmt.Errorf("%w: type 0x%x", ErrConflictingFlags, t)
	}
	if h.RequestID, err = r.ReadVarint(); err != nil {
		return h, err
	}
	if h.GroupID, err = r.ReadVarint(); err != nil {
		return h, err
	}
	if h.Flags.hasSubgroupID() {
		if h.SubgroupID, err = r.ReadVarint(); err != nil {
			return h, err
		}
	}
	if h.Priority, err = r.ReadUint8(); err != nil {
		return h, err
	}
	return h, nil
}
