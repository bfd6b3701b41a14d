package control

import (
	"fmt"

	"github.com/QYUbit/moqsession/pkg/wire"
)

// MaxVersions caps the versions a client may offer.
const MaxVersions = 128

type ClientSetup struct {
	Versions   []uint64
	Parameters *wire.Parameters
}

func (*ClientSetup) Type() MessageType { return TypeClientSetup }

func (m *ClientSetup) encode(b []byte, c Codec) ([]byte, error) {
	if len(m.Versions) > MaxVersions {
		return nil, fmt.Errorf("%w: %d", ErrTooManyVersions, len(m.Versions))
	}
	b = wire.AppendVarint(b, uint64(len(m.Versions)))
	for _, v := range m.Versions {
		b = wire.AppendVarint(b, v)
	}
	return m.Parameters.Append(b, c.Params)
}

func (m *ClientSetup) decode(r *wire.Reader, c Codec) error {
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	if n > MaxVersions {
		return fmt.Errorf("%w: %d", ErrTooManyVersions, n)
	}
	m.Versions = make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := r.ReadVarint()
		if err != nil {
			return err
		}
		m.Versions = append(m.Versions, v)
	}
	m.Parameters, err = wire.ReadParameters(r, c.Params)
	return err
}

type ServerSetup struct {
	Version    uint64
	Parameters *wire.Parameters
}

func (*ServerSetup) Type() MessageType { return TypeServerSetup }

func (m *ServerSetup) encode(b []byte, c Codec) ([]byte, error) {
	b = wire.AppendVarint(b, m.Version)
	return m.Parameters.Append(b, c.Params)
}

func (m *ServerSetup) decode(r *wire.Reader, c Codec) (err error) {
	if m.Version, err = r.ReadVarint(); err != nil {
		return err
	}
	m.Parameters, err = wire.ReadParameters(r, c.Params)
	return err
}
