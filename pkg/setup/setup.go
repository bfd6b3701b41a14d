// Package setup performs the client side of the session handshake.
package setup

import (
	"errors"
	"fmt"
	"io"

	"github.com/QYUbit/moqsession/pkg/control"
	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/wire"
)

// Session type identifiers a server may select.
const (
	VersionLite  uint64 = 0xff0dad01
	VersionDraft uint64 = 0xff00000e
)

var (
	ErrHandshakeFailed    = errors.New("setup: handshake failed")
	ErrUnsupportedVersion = errors.New("setup: unsupported server version")
	ErrUnexpectedMessage  = errors.New("setup: unexpected message type")
)

// Dialect is the handshake convention of a relay. It is chosen before the
// handshake and fixed for the life of the connection.
type Dialect uint8

const (
	// DialectLiteBytes offers every known version and carries parameter
	// values as raw bytes behind a varint body length.
	DialectLiteBytes Dialect = iota
	// DialectDraft14Parity offers only draft 14, frames bodies with a 16-bit
	// length and types parameter values by key parity.
	DialectDraft14Parity
)

func (d Dialect) String() string {
	switch d {
	case DialectLiteBytes:
		return "lite-bytes"
	case DialectDraft14Parity:
		return "draft14-parity"
	default:
		return fmt.Sprintf("dialect(%d)", uint8(d))
	}
}

// Codec returns the framing used for the handshake messages of d.
func (d Dialect) Codec() control.Codec {
	if d == DialectDraft14Parity {
		return control.Codec{Framing: wire.FramingUint16, Params: wire.ParamsParity}
	}
	return control.Codec{Framing: wire.FramingVarint, Params: wire.ParamsBytes}
}

// Versions returns the versions a client speaking d offers.
func (d Dialect) Versions() []uint64 {
	if d == DialectDraft14Parity {
		return []uint64{VersionDraft}
	}
	return []uint64{VersionLite, VersionDraft}
}

// Result is the outcome of a successful handshake.
type Result struct {
	Version    uint64
	Variant    control.Variant
	Parameters *wire.Parameters
}

// Negotiate writes CLIENT_SETUP to w and decodes SERVER_SETUP from r. Every
// failure wraps ErrHandshakeFailed and is fatal to the connection attempt.
func Negotiate(w io.Writer, r *wire.Reader, d Dialect, logger mlog.Logger) (Result, error) {
	logger = mlog.OrNop(logger)
	codec := d.Codec()

	client := &control.ClientSetup{
		Versions:   d.Versions(),
		Parameters: &wire.Parameters{},
	}
	b, err := control.Encode(nil, client, codec)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if _, err := w.Write(b); err != nil {
		return Result{}, fmt.Errorf("%w: write client setup: %w", ErrHandshakeFailed, err)
	}
	logger.Debug("client setup sent", "dialect", d, "versions", client.Versions)

	tag, err := r.ReadVarint()
	if err != nil {
		return Result{}, fmt.Errorf("%w: read message type: %w", ErrHandshakeFailed, err)
	}
	if control.MessageType(tag) != control.TypeServerSetup {
		return Result{}, fmt.Errorf("%w: %w: 0x%x, expected 0x%x",
			ErrHandshakeFailed, ErrUnexpectedMessage, tag, uint64(control.TypeServerSetup))
	}

	server := &control.ServerSetup{}
	if err := control.DecodeBody(r, server, codec); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	res := Result{Version: server.Version, Parameters: server.Parameters}
	switch server.Version {
	case VersionLite:
		res.Variant = control.VariantLite
	case VersionDraft:
		res.Variant = control.VariantIETF
	default:
		return Result{}, fmt.Errorf("%w: %w: 0x%x", ErrHandshakeFailed, ErrUnsupportedVersion, server.Version)
	}

	logger.Debug("server setup received",
		"version", fmt.Sprintf("0x%x", server.Version),
		"variant", res.Variant,
		"parameters", server.Parameters.Len())
	return res, nil
}
