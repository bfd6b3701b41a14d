package quic

import (
	"context"

	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/quic-go/quic-go"
)

type stream struct {
	*quic.Stream
}

func (s stream) CancelRead(code transport.ErrorCode) {
	s.Stream.CancelRead(quic.StreamErrorCode(code))
}

func (s stream) CancelWrite(code transport.ErrorCode) {
	s.Stream.CancelWrite(quic.StreamErrorCode(code))
}

type sendStream struct {
	*quic.SendStream
}

func (s sendStream) CancelWrite(code transport.ErrorCode) {
	s.SendStream.CancelWrite(quic.StreamErrorCode(code))
}

type receiveStream struct {
	*quic.ReceiveStream
}

func (s receiveStream) CancelRead(code transport.ErrorCode) {
	s.ReceiveStream.CancelRead(quic.StreamErrorCode(code))
}

type session struct {
	conn *quic.Conn
}

// NewSession wraps an established QUIC connection, client or server side.
func NewSession(conn *quic.Conn) transport.Session {
	return &session{conn: conn}
}

func (s *session) OpenStream(ctx context.Context) (transport.Stream, error) {
	str, err := s.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return stream{str}, nil
}

func (s *session) OpenUniStream(ctx context.Context) (transport.SendStream, error) {
	str, err := s.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return sendStream{str}, nil
}

func (s *session) AcceptStream(ctx context.Context) (transport.Stream, error) {
	str, err := s.conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return stream{str}, nil
}

func (s *session) AcceptUniStream(ctx context.Context) (transport.ReceiveStream, error) {
	str, err := s.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return receiveStream{str}, nil
}

func (s *session) CloseWithError(code transport.ErrorCode, reason string) error {
	return s.conn.CloseWithError(quic.ApplicationErrorCode(code), reason)
}

func (s *session) Context() context.Context {
	return s.conn.Context()
}
