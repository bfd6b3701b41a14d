package wire

import "errors"

var (
	ErrTrailingBytes       = errors.New("wire: message has trailing bytes")
	ErrMessageTooLarge     = errors.New("wire: message exceeds framing limit")
	ErrValueTooLarge       = errors.New("wire: length prefix exceeds allocation limit")
	ErrVarintOverflow      = errors.New("wire: value does not fit in a 62-bit varint")
	ErrParameterNotInteger = errors.New("wire: even parameter key carries a non-integer value")
	ErrTooManyParameters   = errors.New("wire: too many parameters")
	ErrDuplicateParameter  = errors.New("wire: parameter key repeated")
	ErrTupleTooLong        = errors.New("wire: namespace tuple too long")
)
