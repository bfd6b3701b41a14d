// Package quic dials relay sessions over raw QUIC (moqt:// URLs).
package quic

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"

	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/quic-go/quic-go"
)

// NextProto is the ALPN negotiated for raw QUIC sessions.
const NextProto = "moq-00"

const defaultPort = "443"

type Dialer struct {
	TLSConfig  *tls.Config
	QUICConfig *quic.Config
}

var _ transport.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, rawURL string) (transport.Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "moqt" {
		return nil, fmt.Errorf("quic: unsupported scheme %q", u.Scheme)
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), defaultPort)
	}

	var tlsConf *tls.Config
	if d.TLSConfig != nil {
		tlsConf = d.TLSConfig.Clone()
	} else {
		tlsConf = &tls.Config{}
	}
	tlsConf.NextProtos = []string{NextProto}
	if tlsConf.ServerName == "" {
		tlsConf.ServerName = u.Hostname()
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, d.QUICConfig)
	if err != nil {
		return nil, err
	}
	return NewSession(conn), nil
}
