// Package control implements the control messages of the session protocol
// and the framed request/response channel that carries them.
package control

import (
	"fmt"

	"github.com/QYUbit/moqsession/pkg/wire"
)

// Variant is the message flavour spoken after the handshake.
type Variant uint8

const (
	VariantLite Variant = iota
	VariantIETF
)

func (v Variant) String() string {
	switch v {
	case VariantLite:
		return "lite"
	case VariantIETF:
		return "ietf"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// Codec returns the body framing and parameter layout of v.
func (v Variant) Codec() Codec {
	if v == VariantIETF {
		return Codec{Framing: wire.FramingUint16, Params: wire.ParamsParity}
	}
	return Codec{Framing: wire.FramingVarint, Params: wire.ParamsBytes}
}

// Codec fixes how message bodies are framed and how parameters are laid out.
type Codec struct {
	Framing wire.Framing
	Params  wire.ParamStyle
}

func (c Codec) String() string {
	return fmt.Sprintf("%s/%s", c.Framing, c.Params)
}
