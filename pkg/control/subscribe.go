package control

import (
	"fmt"

	"github.com/QYUbit/moqsession/pkg/wire"
)

// Subscribe filter types.
const (
	FilterNextGroupStart uint64 = 0x1
	FilterLatestObject   uint64 = 0x2
	FilterAbsoluteStart  uint64 = 0x3
	FilterAbsoluteRange  uint64 = 0x4
)

// Group orders.
const (
	GroupOrderPublisher  uint8 = 0x0
	GroupOrderAscending  uint8 = 0x1
	GroupOrderDescending uint8 = 0x2
)

// PublishDone status codes.
const (
	StatusInternalError     uint64 = 0x0
	StatusUnauthorized      uint64 = 0x1
	StatusTrackEnded        uint64 = 0x2
	StatusSubscriptionEnded uint64 = 0x3
	StatusGoingAway         uint64 = 0x4
	StatusExpired           uint64 = 0x5
	StatusTooFarBehind      uint64 = 0x6
)

// Subscribe error codes.
const (
	SubscribeInternalError     uint64 = 0x0
	SubscribeUnauthorized      uint64 = 0x1
	SubscribeTimeout           uint64 = 0x2
	SubscribeNotSupported      uint64 = 0x3
	SubscribeTrackDoesNotExist uint64 = 0x4
)

type Subscribe struct {
	RequestID   uint64
	Namespace   string
	Track       string
	Priority    uint8
	GroupOrder  uint8
	Forward     bool
	FilterType  uint64
	StartGroup  uint64
	StartObject uint64
	EndGroup    uint64
	Parameters  *wire.Parameters
}

func (*Subscribe) Type() MessageType { return TypeSubscribe }

func (m *Subscribe) encode(b []byte, c Codec) ([]byte, error) {
	b = wire.AppendVarint(b, m.RequestID)
	b, err := wire.AppendTuple(b, m.Namespace)
	if err != nil {
		return nil, err
	}
	b = wire.AppendString(b, m.Track)
	b = append(b, m.Priority, m.GroupOrder, boolByte(m.Forward))
	b = wire.AppendVarint(b, m.FilterType)

	switch m.FilterType {
	case FilterNextGroupStart, FilterLatestObject:
	case FilterAbsoluteStart:
		b = wire.AppendVarint(b, m.StartGroup)
		b = wire.AppendVarint(b, m.StartObject)
	case FilterAbsoluteRange:
		b = wire.AppendVarint(b, m.StartGroup)
		b = wire.AppendVarint(b, m.StartObject)
		b = wire.AppendVarint(b, m.EndGroup)
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidFilter, m.FilterType)
	}
	return m.Parameters.Append(b, c.Params)
}

func (m *Subscribe) decode(r *wire.Reader, c Codec) (err error) {
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.Namespace, err = r.ReadTuple(); err != nil {
		return err
	}
	if m.Track, err = r.ReadString(); err != nil {
		return err
	}
	if m.Priority, err = r.ReadUint8(); err != nil {
		return err
	}
	if m.GroupOrder, err = r.ReadUint8(); err != nil {
		return err
	}
	if m.Forward, err = readBool(r); err != nil {
		return err
	}
	if m.FilterType, err = r.ReadVarint(); err != nil {
		return err
	}

	switch m.FilterType {
	case FilterNextGroupStart, FilterLatestObject:
	case FilterAbsoluteStart, FilterAbsoluteRange:
		if m.StartGroup, err = r.ReadVarint(); err != nil {
			return err
		}
		if m.StartObject, err = r.ReadVarint(); err != nil {
			return err
		}
		if m.FilterType == FilterAbsoluteRange {
			if m.EndGroup, err = r.ReadVarint(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidFilter, m.FilterType)
	}

	m.Parameters, err = wire.ReadParameters(r, c.Params)
	return err
}

type SubscribeOk struct {
	RequestID     uint64
	TrackAlias    uint64
	Expires       uint64
	GroupOrder    uint8
	ContentExists bool
	LargestGroup  uint64
	LargestObject uint64
	Parameters    *wire.Parameters
}

func (*SubscribeOk) Type() MessageType { return TypeSubscribeOk }

func (m *SubscribeOk) encode(b []byte, c Codec) ([]byte, error) {
	b = wire.AppendVarint(b, m.RequestID)
	b = wire.AppendVarint(b, m.TrackAlias)
	b = wire.AppendVarint(b, m.Expires)
	b = append(b, m.GroupOrder, boolByte(m.ContentExists))
	if m.ContentExists {
		b = wire.AppendVarint(b, m.LargestGroup)
		b = wire.AppendVarint(b, m.LargestObject)
	}
	return m.Parameters.Append(b, c.Params)
}

func (m *SubscribeOk) decode(r *wire.Reader, c Codec) (err error) {
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.TrackAlias, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.Expires, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.GroupOrder, err = r.ReadUint8(); err != nil {
		return err
	}
	if m.ContentExists, err = readBool(r); err != nil {
		return err
	}
	if m.ContentExists {
		if m.LargestGroup, err = r.ReadVarint(); err != nil {
			return err
		}
		if m.LargestObject, err = r.ReadVarint(); err != nil {
			return err
		}
	}
	m.Parameters, err = wire.ReadParameters(r, c.Params)
	return err
}

type SubscribeError struct {
	RequestID uint64
	Code      uint64
	Reason    string
}

func (*SubscribeError) Type() MessageType { return TypeSubscribeError }

func (m *SubscribeError) encode(b []byte, _ Codec) ([]byte, error) {
	return appendRequestError(b, m.RequestID, m.Code, m.Reason), nil
}

func (m *SubscribeError) decode(r *wire.Reader, _ Codec) (err error) {
	m.RequestID, m.Code, m.Reason, err = readRequestError(r)
	return err
}

type Unsubscribe struct {
	RequestID uint64
}

func (*Unsubscribe) Type() MessageType { return TypeUnsubscribe }

func (m *Unsubscribe) encode(b []byte, _ Codec) ([]byte, error) {
	return wire.AppendVarint(b, m.RequestID), nil
}

func (m *Unsubscribe) decode(r *wire.Reader, _ Codec) (err error) {
	m.RequestID, err = r.ReadVarint()
	return err
}

type PublishDone struct {
	RequestID   uint64
	StatusCode  uint64
	StreamCount uint64
	Reason      string
}

func (*PublishDone) Type() MessageType { return TypePublishDone }

func (m *PublishDone) encode(b []byte, _ Codec) ([]byte, error) {
	b = wire.AppendVarint(b, m.RequestID)
	b = wire.AppendVarint(b, m.StatusCode)
	b = wire.AppendVarint(b, m.StreamCount)
	return wire.AppendString(b, m.Reason), nil
}

func (m *PublishDone) decode(r *wire.Reader, _ Codec) (err error) {
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.StatusCode, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.StreamCount, err = r.ReadVarint(); err != nil {
		return err
	}
	m.Reason, err = r.ReadString()
	return err
}

// Success reports whether the publisher ended the subscription normally.
func (m *PublishDone) Success() bool {
	return m.StatusCode == StatusTrackEnded || m.StatusCode == StatusSubscriptionEnded
}

func appendRequestError(b []byte, requestID, code uint64, reason string) []byte {
	b = wire.AppendVarint(b, requestID)
	b = wire.AppendVarint(b, code)
	return wire.AppendString(b, reason)
}

func readRequestError(r *wire.Reader) (requestID, code uint64, reason string, err error) {
	if requestID, err = r.ReadVarint(); err != nil {
		return
	}
	if code, err = r.ReadVarint(); err != nil {
		return
	}
	reason, err = r.ReadString()
	return
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func readBool(r *wire.Reader) (bool, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: %d", ErrInvalidBool, b)
}
