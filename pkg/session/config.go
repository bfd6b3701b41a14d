package session

import (
	"context"
	"net/url"
	"time"

	"github.com/QYUbit/moqsession/pkg/metrics"
	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/race"
	"github.com/QYUbit/moqsession/pkg/setup"
	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/QYUbit/moqsession/pkg/transport/quic"
	websockets "github.com/QYUbit/moqsession/pkg/transport/websocket"
	"github.com/QYUbit/moqsession/pkg/transport/webtransport"
)

// Config configures Connect. The zero value dials WebTransport (raw QUIC
// for moqt:// URLs) raced against the WebSocket fallback, speaking the
// LiteBytes dialect.
type Config struct {
	Dialect setup.Dialect

	// Native and Fallback default to the built-in dialers when both are nil.
	Native           transport.Dialer
	Fallback         transport.Dialer
	FallbackDisabled bool
	FallbackURL      string
	HeadStart        time.Duration

	// Memory is shared between connections to skip the native head start
	// for URLs where the fallback won before. Nil uses race.DefaultMemory.
	Memory *race.FallbackMemory

	Logger  mlog.Logger
	Metrics *metrics.Metrics
}

func (c Config) withDefaults() Config {
	c.Logger = mlog.OrNop(c.Logger)
	if c.Memory == nil {
		c.Memory = race.DefaultMemory
	}
	if c.Native == nil && c.Fallback == nil {
		c.Native = transport.WithLogging(NativeDialer(c.Logger), "native", c.Logger)
		c.Fallback = transport.WithLogging(&websockets.Dialer{Logger: c.Logger}, "websocket", c.Logger)
	}
	return c
}

func (c Config) raceConfig() race.Config {
	return race.Config{
		Native:           c.Native,
		Fallback:         c.Fallback,
		FallbackDisabled: c.FallbackDisabled,
		FallbackURL:      c.FallbackURL,
		HeadStart:        c.HeadStart,
		Memory:           c.Memory,
		Logger:           c.Logger,
		Metrics:          c.Metrics,
	}
}

// NativeDialer picks raw QUIC for moqt:// URLs and WebTransport otherwise.
func NativeDialer(logger mlog.Logger) transport.Dialer {
	wt := &webtransport.Dialer{Logger: logger}
	q := &quic.Dialer{}

	return transport.DialerFunc(func(ctx context.Context, rawURL string) (transport.Session, error) {
		if u, err := url.Parse(rawURL); err == nil && u.Scheme == "moqt" {
			return q.Dial(ctx, rawURL)
		}
		return wt.Dial(ctx, rawURL)
	})
}
