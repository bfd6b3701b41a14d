package control

import (
	"github.com/QYUbit/moqsession/pkg/wire"
)

// TrackStatus status codes.
const (
	TrackInProgress   uint64 = 0x00
	TrackDoesNotExist uint64 = 0x01
	TrackNotBegun     uint64 = 0x02
	TrackFinished     uint64 = 0x03
	TrackRelayUnknown uint64 = 0x04
)

type TrackStatusRequest struct {
	RequestID  uint64
	Namespace  string
	Track      string
	Parameters *wire.Parameters
}

func (*TrackStatusRequest) Type() MessageType { return TypeTrackStatusRequest }

func (m *TrackStatusRequest) encode(b []byte, c Codec) ([]byte, error) {
	b = wire.AppendVarint(b, m.RequestID)
	b, err := wire.AppendTuple(b, m.Namespace)
	if err != nil {
		return nil, err
	}
	b = wire.AppendString(b, m.Track)
	return m.Parameters.Append(b, c.Params)
}

func (m *TrackStatusRequest) decode(r *wire.Reader, c Codec) (err error) {
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.Namespace, err = r.ReadTuple(); err != nil {
		return err
	}
	if m.Track, err = r.ReadString(); err != nil {
		return err
	}
	m.Parameters, err = wire.ReadParameters(r, c.Params)
	return err
}

type TrackStatus struct {
	RequestID     uint64
	StatusCode    uint64
	LargestGroup  uint64
	LargestObject uint64
	Parameters    *wire.Parameters
}

func (*TrackStatus) Type() MessageType { return TypeTrackStatus }

func (m *TrackStatus) encode(b []byte, c Codec) ([]byte, error) {
	b = wire.AppendVarint(b, m.RequestID)
	b = wire.AppendVarint(b, m.StatusCode)
	b = wire.AppendVarint(b, m.LargestGroup)
	b = wire.AppendVarint(b, m.LargestObject)
	return m.Parameters.Append(b, c.Params)
}

func (m *TrackStatus) decode(r *wire.Reader, c Codec) (err error) {
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.StatusCode, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.LargestGroup, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.LargestObject, err = r.ReadVarint(); err != nil {
		return err
	}
	m.Parameters, err = wire.ReadParameters(r, c.Params)
	return err
}
