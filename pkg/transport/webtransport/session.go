package webtransport

import (
	"context"

	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/quic-go/webtransport-go"
)

type stream struct {
	*webtransport.Stream
}

func (s stream) CancelRead(code transport.ErrorCode) {
	s.Stream.CancelRead(webtransport.StreamErrorCode(code))
}

func (s stream) CancelWrite(code transport.ErrorCode) {
	s.Stream.CancelWrite(webtransport.StreamErrorCode(code))
}

type sendStream struct {
	*webtransport.SendStream
}

func (s sendStream) CancelWrite(code transport.ErrorCode) {
	s.SendStream.CancelWrite(webtransport.StreamErrorCode(code))
}

type receiveStream struct {
	*webtransport.ReceiveStream
}

func (s receiveStream) CancelRead(code transport.ErrorCode) {
	s.ReceiveStream.CancelRead(webtransport.StreamErrorCode(code))
}

type session struct {
	ses     *webtransport.Session
	onClose func()
}

func (s *session) OpenStream(ctx context.Context) (transport.Stream, error) {
	str, err := s.ses.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return stream{str}, nil
}

func (s *session) OpenUniStream(ctx context.Context) (transport.SendStream, error) {
	str, err := s.ses.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return sendStream{str}, nil
}

func (s *session) AcceptStream(ctx context.Context) (transport.Stream, error) {
	str, err := s.ses.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return stream{str}, nil
}

func (s *session) AcceptUniStream(ctx context.Context) (transport.ReceiveStream, error) {
	str, err := s.ses.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return receiveStream{str}, nil
}

func (s *session) CloseWithError(code transport.ErrorCode, reason string) error {
	err := s.ses.CloseWithError(webtransport.SessionErrorCode(code), reason)
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

func (s *session) Context() context.Context {
	return s.ses.Context()
}
