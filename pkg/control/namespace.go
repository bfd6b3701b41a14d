package control

import (
	"github.com/QYUbit/moqsession/pkg/wire"
)

type PublishNamespace struct {
	RequestID  uint64
	Namespace  string
	Parameters *wire.Parameters
}

func (*PublishNamespace) Type() MessageType { return TypePublishNamespace }

func (m *PublishNamespace) encode(b []byte, c Codec) ([]byte, error) {
	b = wire.AppendVarint(b, m.RequestID)
	b, err := wire.AppendTuple(b, m.Namespace)
	if err != nil {
		return nil, err
	}
	return m.Parameters.Append(b, c.Params)
}

func (m *PublishNamespace) decode(r *wire.Reader, c Codec) (err error) {
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.Namespace, err = r.ReadTuple(); err != nil {
		return err
	}
	m.Parameters, err = wire.ReadParameters(r, c.Params)
	return err
}

type PublishNamespaceOk struct {
	RequestID uint64
}

func (*PublishNamespaceOk) Type() MessageType { return TypePublishNamespaceOk }

func (m *PublishNamespaceOk) encode(b []byte, _ Codec) ([]byte, error) {
	return wire.AppendVarint(b, m.RequestID), nil
}

func (m *PublishNamespaceOk) decode(r *wire.Reader, _ Codec) (err error) {
	m.RequestID, err = r.ReadVarint()
	return err
}

type PublishNamespaceError struct {
	RequestID uint64
	Code      uint64
	Reason    string
}

func (*PublishNamespaceError) Type() MessageType { return TypePublishNamespaceError }

func (m *PublishNamespaceError) encode(b []byte, _ Codec) ([]byte, error) {
	return appendRequestError(b, m.RequestID, m.Code, m.Reason), nil
}

func (m *PublishNamespaceError) decode(r *wire.Reader, _ Codec) (err error) {
	m.RequestID, m.Code, m.Reason, err = readRequestError(r)
	return err
}

type PublishNamespaceDone struct {
	Namespace string
}

func (*PublishNamespaceDone) Type() MessageType { return TypePublishNamespaceDone }

func (m *PublishNamespaceDone) encode(b []byte, _ Codec) ([]byte, error) {
	return wire.AppendTuple(b, m.Namespace)
}

func (m *PublishNamespaceDone) decode(r *wire.Reader, _ Codec) (err error) {
	m.Namespace, err = r.ReadTuple()
	return err
}

type PublishNamespaceCancel struct {
	Namespace string
	Code      uint64
	Reason    string
}

func (*PublishNamespaceCancel) Type() MessageType { return TypePublishNamespaceCancel }

func (m *PublishNamespaceCancel) encode(b []byte, _ Codec) ([]byte, error) {
	b, err := wire.AppendTuple(b, m.Namespace)
	if err != nil {
		return nil, err
	}
	b = wire.AppendVarint(b, m.Code)
	return wire.AppendString(b, m.Reason), nil
}

func (m *PublishNamespaceCancel) decode(r *wire.Reader, _ Codec) (err error) {
	if m.Namespace, err = r.ReadTuple(); err != nil {
		return err
	}
	if m.Code, err = r.ReadVarint(); err != nil {
		return err
	}
	m.Reason, err = r.ReadString()
	return err
}

type SubscribeNamespace struct {
	RequestID  uint64
	Prefix     string
	Parameters *wire.Parameters
}

func (*SubscribeNamespace) Type() MessageType { return TypeSubscribeNamespace }

func (m *SubscribeNamespace) encode(b []byte, c Codec) ([]byte, error) {
	b = wire.AppendVarint(b, m.RequestID)
	b, err := wire.AppendTuple(b, m.Prefix)
	if err != nil {
		return nil, err
	}
	return m.Parameters.Append(b, c.Params)
}

func (m *SubscribeNamespace) decode(r *wire.Reader, c Codec) (err error) {
	if m.RequestID, err = r.ReadVarint(); err != nil {
		return err
	}
	if m.Prefix, err = r.ReadTuple(); err != nil {
		return err
	}
	m.Parameters, err = wire.ReadParameters(r, c.Params)
	return err
}

type SubscribeNamespaceOk struct {
	RequestID uint64
}

func (*SubscribeNamespaceOk) Type() MessageType { return TypeSubscribeNamespaceOk }

func (m *SubscribeNamespaceOk) encode(b []byte, _ Codec) ([]byte, error) {
	return wire.AppendVarint(b, m.RequestID), nil
}

func (m *SubscribeNamespaceOk) decode(r *wire.Reader, _ Codec) (err error) {
	m.RequestID, err = r.ReadVarint()
	return err
}

type SubscribeNamespaceError struct {
	RequestID uint64
	Code      uint64
	Reason    string
}

func (*SubscribeNamespaceError) Type() MessageType { return TypeSubscribeNamespaceError }

func (m *SubscribeNamespaceError) encode(b []byte, _ Codec) ([]byte, error) {
	return appendRequestError(b, m.RequestID, m.Code, m.Reason), nil
}

func (m *SubscribeNamespaceError) decode(r *wire.Reader, _ Codec) (err error) {
	m.RequestID, m.Code, m.Reason, err = readRequestError(r)
	return err
}

// UnsubscribeNamespace withdraws the SubscribeNamespace with RequestID.
type UnsubscribeNamespace struct {
	RequestID uint64
}

func (*UnsubscribeNamespace) Type() MessageType { return TypeUnsubscribeNamespace }

func (m *UnsubscribeNamespace) encode(b []byte, _ Codec) ([]byte, error) {
	return wire.AppendVarint(b, m.RequestID), nil
}

func (m *UnsubscribeNamespace) decode(r *wire.Reader, _ Codec) (err error) {
	m.RequestID, err = r.ReadVarint()
	return err
}
