// Package transport abstracts the multiplexed stream sessions a relay
// connection runs on: WebTransport, raw QUIC, or yamux over WebSocket.
package transport

import (
	"context"
	"io"
)

// ErrorCode is an application error code sent when a stream is reset or a
// session is closed.
type ErrorCode uint32

const (
	CodeNoError   ErrorCode = 0
	CodeInternal  ErrorCode = 1
	CodeCancelled ErrorCode = 2
)

type ReceiveStream interface {
	io.Reader
	// CancelRead aborts the receive side, the peer sees a reset.
	CancelRead(code ErrorCode)
}

type SendStream interface {
	io.Writer
	// Close finishes the send side gracefully.
	io.Closer
	CancelWrite(code ErrorCode)
}

type Stream interface {
	ReceiveStream
	SendStream
}

// Session is one established transport connection.
type Session interface {
	OpenStream(ctx context.Context) (Stream, error)
	OpenUniStream(ctx context.Context) (SendStream, error)
	AcceptStream(ctx context.Context) (Stream, error)
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)
	CloseWithError(code ErrorCode, reason string) error
	// Context is cancelled once the session is closed by either side.
	Context() context.Context
}

// Dialer establishes sessions against a URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Session, error)
}

type DialerFunc func(ctx context.Context, url string) (Session, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Session, error) {
	return f(ctx, url)
}
