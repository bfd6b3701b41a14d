package control

import "errors"

var (
	ErrUnknownMessageType = errors.New("control: unknown message type")
	ErrTooManyVersions    = errors.New("control: too many versions")
	ErrInvalidFilter      = errors.New("control: unsupported subscribe filter")
	ErrInvalidBool        = errors.New("control: invalid boolean value")
)
