package control

import (
	"github.com/QYUbit/moqsession/pkg/wire"
)

type GoAway struct {
	NewSessionURI string
}

func (*GoAway) Type() MessageType { return TypeGoAway }

func (m *GoAway) encode(b []byte, _ Codec) ([]byte, error) {
	return wire.AppendString(b, m.NewSessionURI), nil
}

func (m *GoAway) decode(r *wire.Reader, _ Codec) (err error) {
	m.NewSessionURI, err = r.ReadString()
	return err
}

type MaxRequestID struct {
	RequestID uint64
}

func (*MaxRequestID) Type() MessageType { return TypeMaxRequestID }

func (m *MaxRequestID) encode(b []byte, _ Codec) ([]byte, error) {
	return wire.AppendVarint(b, m.RequestID), nil
}

func (m *MaxRequestID) decode(r *wire.Reader, _ Codec) (err error) {
	m.RequestID, err = r.ReadVarint()
	return err
}

type RequestsBlocked struct {
	MaximumRequestID uint64
}

func (*RequestsBlocked) Type() MessageType { return TypeRequestsBlocked }

func (m *RequestsBlocked) encode(b []byte, _ Codec) ([]byte, error) {
	return wire.AppendVarint(b, m.MaximumRequestID), nil
}

func (m *RequestsBlocked) decode(r *wire.Reader, _ Codec) (err error) {
	m.MaximumRequestID, err = r.ReadVarint()
	return err
}

// Opaque holds a message this client recognizes but does not interpret:
// the Fetch and Publish families. Only the leading request id is parsed,
// the rest of the body is kept verbatim.
type Opaque struct {
	Kind      MessageType
	RequestID uint64
	Body      []byte
}

func (m *Opaque) Type() MessageType { return m.Kind }

func (m *Opaque) encode(b []byte, _ Codec) ([]byte, error) {
	b = wire.AppendVarint(b, m.RequestID)
	return append(b, m.Body...), nil
}

func (m *Opaque) decode(r *wire.Reader, _ Codec) (err error) {
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return err
	}
	m.Body, err = r.ReadFull(uint64(r.Remaining()))
	return err
}
