// Package muxsession runs the transport.Session abstraction over a yamux
// multiplexed byte stream. Each yamux stream starts with one kind byte that
// tells bidirectional streams from one-way streams.
package muxsession

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/hashicorp/yamux"
)

const (
	kindBidi byte = 0x00
	kindUni  byte = 0x01
)

const (
	acceptBacklog = 64
	kindTimeout   = 10 * time.Second
)

var (
	ErrSessionClosed = errors.New("muxsession: session closed")
	ErrUnknownKind   = errors.New("muxsession: unknown stream kind")
	ErrReadCancelled = errors.New("muxsession: read cancelled")
)

// SessionError is the close cause recorded by CloseWithError.
type SessionError struct {
	Code   transport.ErrorCode
	Reason string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("muxsession: closed with code %d: %s", e.Code, e.Reason)
}

type Session struct {
	mux    *yamux.Session
	logger mlog.Logger

	bidi chan *yamux.Stream
	uni  chan *yamux.Stream

	ctx    context.Context
	cancel context.CancelCauseFunc
}

var _ transport.Session = (*Session)(nil)

// Client starts the dialing side of a session on conn.
func Client(conn io.ReadWriteCloser, logger mlog.Logger) (*Session, error) {
	mux, err := yamux.Client(conn, muxConfig(logger))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create yamux client: %w", err)
	}
	return newSession(mux, logger), nil
}

// Server starts the accepting side of a session on conn.
func Server(conn io.ReadWriteCloser, logger mlog.Logger) (*Session, error) {
	mux, err := yamux.Server(conn, muxConfig(logger))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create yamux server: %w", err)
	}
	return newSession(mux, logger), nil
}

func muxConfig(logger mlog.Logger) *yamux.Config {
	conf := yamux.DefaultConfig()
	conf.LogOutput = &logWriter{logger: mlog.OrNop(logger)}
	return conf
}

func newSession(mux *yamux.Session, logger mlog.Logger) *Session {
	ctx, cancel := context.WithCancelCause(context.Background())
	s := &Session{
		mux:    mux,
		logger: mlog.OrNop(logger),
		bidi:   make(chan *yamux.Stream, acceptBacklog),
		uni:    make(chan *yamux.Stream, acceptBacklog),
		ctx:    ctx,
		cancel: cancel,
	}

	go func() {
		<-mux.CloseChan()
		cancel(ErrSessionClosed)
	}()
	go s.acceptLoop()

	return s
}

func (s *Session) acceptLoop() {
	for {
		str, err := s.mux.AcceptStream()
		if err != nil {
			s.cancel(ErrSessionClosed)
			return
		}
		go s.classify(str)
	}
}

func (s *Session) classify(str *yamux.Stream) {
	str.SetReadDeadline(time.Now().Add(kindTimeout))

	var kind [1]byte
	if _, err := io.ReadFull(str, kind[:]); err != nil {
		s.logger.Debug("failed to read stream kind", "stream", str.StreamID(), "error", err)
		str.Close()
		return
	}
	str.SetReadDeadline(time.Time{})

	var queue chan *yamux.Stream
	switch kind[0] {
	case kindBidi:
		queue = s.bidi
	case kindUni:
		queue = s.uni
	default:
		s.logger.Warn("dropping stream", "stream", str.StreamID(), "error", ErrUnknownKind, "kind", kind[0])
		str.Close()
		return
	}

	select {
	case queue <- str:
	case <-s.ctx.Done():
		str.Close()
	}
}

func (s *Session) open(ctx context.Context, kind byte) (*yamux.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ctx.Err(); err != nil {
		return nil, context.Cause(s.ctx)
	}

	str, err := s.mux.OpenStream()
	if err != nil {
		return nil, err
	}
	if _, err := str.Write([]byte{kind}); err != nil {
		str.Close()
		return nil, err
	}
	return str, nil
}

func (s *Session) accept(ctx context.Context, queue chan *yamux.Stream) (*yamux.Stream, error) {
	select {
	case str := <-queue:
		return str, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, context.Cause(s.ctx)
	}
}

func (s *Session) OpenStream(ctx context.Context) (transport.Stream, error) {
	str, err := s.open(ctx, kindBidi)
	if err != nil {
		return nil, err
	}
	return &stream{Stream: str}, nil
}

func (s *Session) OpenUniStream(ctx context.Context) (transport.SendStream, error) {
	str, err := s.open(ctx, kindUni)
	if err != nil {
		return nil, err
	}
	return &stream{Stream: str}, nil
}

func (s *Session) AcceptStream(ctx context.Context) (transport.Stream, error) {
	str, err := s.accept(ctx, s.bidi)
	if err != nil {
		return nil, err
	}
	return &stream{Stream: str}, nil
}

func (s *Session) AcceptUniStream(ctx context.Context) (transport.ReceiveStream, error) {
	str, err := s.accept(ctx, s.uni)
	if err != nil {
		return nil, err
	}
	return &stream{Stream: str, uni: true}, nil
}

// CloseWithError closes the session. yamux carries no close code, so the
// code and reason are only recorded as the context cause on this side.
func (s *Session) CloseWithError(code transport.ErrorCode, reason string) error {
	s.cancel(&SessionError{Code: code, Reason: reason})
	return s.mux.Close()
}

func (s *Session) Context() context.Context {
	return s.ctx
}

// stream adapts a yamux stream. yamux has no stream reset, so cancelling
// finishes the send side and fails pending reads locally.
type stream struct {
	*yamux.Stream
	uni       bool
	cancelled atomic.Bool
}

func (s *stream) Read(b []byte) (int, error) {
	n, err := s.Stream.Read(b)
	if err != nil && s.cancelled.Load() {
		return n, ErrReadCancelled
	}
	return n, err
}

func (s *stream) CancelRead(transport.ErrorCode) {
	s.cancelled.Store(true)
	s.Stream.SetReadDeadline(time.Now())
	if s.uni {
		s.Stream.Close()
	}
}

func (s *stream) CancelWrite(transport.ErrorCode) {
	s.Stream.Close()
}

type logWriter struct {
	logger mlog.Logger
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.logger.Debug("yamux", "message", string(bytes.TrimSpace(p)))
	return len(p), nil
}
