// Package webtransport dials relay sessions over WebTransport.
package webtransport

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"
)

// FingerprintPath is fetched from http:// relays to pin their self-signed
// certificate.
const FingerprintPath = "/certificate.sha256"

var (
	ErrFingerprintMismatch = errors.New("webtransport: certificate fingerprint mismatch")
	ErrInvalidFingerprint  = errors.New("webtransport: invalid certificate fingerprint")
)

// Dialer establishes WebTransport sessions. The zero value is usable.
type Dialer struct {
	TLSConfig  *tls.Config
	QUICConfig *quic.Config
	Header     http.Header

	// HTTPClient fetches certificate fingerprints. Defaults to a
	// go-cleanhttp client.
	HTTPClient *http.Client

	Logger mlog.Logger
}

var _ transport.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, rawURL string) (transport.Session, error) {
	logger := mlog.OrNop(d.Logger)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	var tlsConf *tls.Config
	if d.TLSConfig != nil {
		tlsConf = d.TLSConfig.Clone()
	} else {
		tlsConf = &tls.Config{}
	}
	tlsConf.NextProtos = []string{http3.NextProtoH3}

	switch u.Scheme {
	case "https":
	case "http":
		logger.Warn("performing an insecure fingerprint fetch, use https:// in production", "url", rawURL)

		fingerprint, err := d.fetchFingerprint(ctx, u)
		if err != nil {
			return nil, err
		}
		tlsConf.InsecureSkipVerify = true
		tlsConf.VerifyPeerCertificate = pinCertificate(fingerprint)

		u = cloneURL(u)
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("webtransport: unsupported scheme %q", u.Scheme)
	}

	quicConf := d.QUICConfig
	if quicConf == nil {
		quicConf = &quic.Config{EnableDatagrams: true}
	}

	wd := &webtransport.Dialer{
		TLSClientConfig: tlsConf,
		QUICConfig:      quicConf,
	}

	type result struct {
		ses *webtransport.Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		rsp, ses, err := wd.Dial(ctx, u.String(), d.Header.Clone())
		if rsp != nil && rsp.Body != nil {
			rsp.Body.Close()
		}
		done <- result{ses: ses, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		// The dialer waits for HTTP/3 settings without watching ctx. Close
		// whatever it produces once it returns.
		go func() {
			if late := <-done; late.ses != nil {
				late.ses.CloseWithError(0, "cancelled")
			}
			wd.Close()
		}()
		return nil, ctx.Err()
	}
	if r.err != nil {
		wd.Close()
		return nil, r.err
	}
	return &session{ses: r.ses, onClose: func() { wd.Close() }}, nil
}

func (d *Dialer) fetchFingerprint(ctx context.Context, u *url.URL) ([]byte, error) {
	client := d.HTTPClient
	if client == nil {
		client = cleanhttp.DefaultClient()
	}

	fu := cloneURL(u)
	fu.Path = FingerprintPath
	fu.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fu.String(), nil)
	if err != nil {
		return nil, err
	}
	rsp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching fingerprint: %w", err)
	}
	defer rsp.Body.Close()

	if rsp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching fingerprint: status %d", rsp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(rsp.Body, 1024))
	if err != nil {
		return nil, fmt.Errorf("fetching fingerprint: %w", err)
	}
	return ParseFingerprint(string(body))
}

// ParseFingerprint decodes a hex SHA-256 fingerprint. Colons and surrounding
// whitespace are ignored.
func ParseFingerprint(s string) ([]byte, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ":", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFingerprint, err)
	}
	if len(b) != sha256.Size {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidFingerprint, len(b))
	}
	return b, nil
}

// pinCertificate accepts only a leaf certificate hashing to fingerprint.
func pinCertificate(fingerprint []byte) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrFingerprintMismatch
		}
		sum := sha256.Sum256(rawCerts[0])
		if subtle.ConstantTimeCompare(sum[:], fingerprint) != 1 {
			return ErrFingerprintMismatch
		}
		return nil
	}
}

func cloneURL(u *url.URL) *url.URL {
	c := *u
	return &c
}
