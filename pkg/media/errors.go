package media

import "errors"

var (
	ErrClosed    = errors.New("media: closed")
	ErrCancelled = errors.New("media: cancelled")
)
