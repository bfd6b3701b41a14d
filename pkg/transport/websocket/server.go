package websockets

import (
	"context"
	"net/http"

	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/QYUbit/moqsession/pkg/transport/muxsession"
	"github.com/gorilla/websocket"
)

// Acceptor upgrades HTTP requests into server-side sessions. Relays in
// tests and local tooling use it to serve the fallback transport.
type Acceptor struct {
	upgrader *websocket.Upgrader
	sessions chan transport.Session
	logger   mlog.Logger
}

func NewAcceptor(logger mlog.Logger) *Acceptor {
	return &Acceptor{
		upgrader: &websocket.Upgrader{
			Subprotocols: []string{Subprotocol},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		sessions: make(chan transport.Session),
		logger:   mlog.OrNop(logger),
	}
}

func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s, err := muxsession.Server(NewConn(ws), a.logger)
	if err != nil {
		a.logger.Error("failed to start session", "remote", r.RemoteAddr, "error", err)
		return
	}

	select {
	case a.sessions <- s:
	case <-r.Context().Done():
		s.CloseWithError(transport.CodeInternal, "not accepted")
	}
}

func (a *Acceptor) Accept(ctx context.Context) (transport.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case s := <-a.sessions:
		return s, nil
	}
}
