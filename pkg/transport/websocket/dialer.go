// Package websockets dials the fallback transport: a WebSocket carrying a
// yamux session. Only servers speaking the same framing, such as Acceptor,
// can accept it.
package websockets

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/QYUbit/moqsession/pkg/transport/muxsession"
	"github.com/gorilla/websocket"
)

// Subprotocol is offered during the WebSocket handshake.
const Subprotocol = "moq-mux"

const defaultHandshakeTimeout = 10 * time.Second

type Dialer struct {
	TLSConfig        *tls.Config
	Header           http.Header
	HandshakeTimeout time.Duration
	Logger           mlog.Logger
}

var _ transport.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, rawURL string) (transport.Session, error) {
	u, err := WebSocketURL(rawURL)
	if err != nil {
		return nil, err
	}

	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = defaultHandshakeTimeout
	}
	wd := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		TLSClientConfig:  d.TLSConfig,
		Subprotocols:     []string{Subprotocol},
	}

	ws, rsp, err := wd.DialContext(ctx, u, d.Header)
	if err != nil {
		if rsp != nil {
			return nil, fmt.Errorf("websocket handshake failed with status %d: %w", rsp.StatusCode, err)
		}
		return nil, err
	}

	// The handshake may have completed just as ctx was cancelled.
	if err := ctx.Err(); err != nil {
		ws.Close()
		return nil, err
	}

	return muxsession.Client(NewConn(ws), d.Logger)
}

// WebSocketURL maps http(s) URLs onto ws(s). ws and wss pass unchanged.
func WebSocketURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("websocket: unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
