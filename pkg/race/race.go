// Package race dials the native and the fallback transport concurrently and
// keeps whichever becomes ready first.
package race

import (
	"context"
	"errors"
	"time"

	"github.com/QYUbit/moqsession/pkg/metrics"
	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/transport"
)

// DefaultHeadStart is how long the native transport may try alone. It needs
// fewer round trips, so on an equal network it wins.
const DefaultHeadStart = 200 * time.Millisecond

var ErrNoTransportAvailable = errors.New("race: no transport available")

// DefaultMemory lives for the whole process and serves every race whose
// Config carries no memory of its own.
var DefaultMemory = NewFallbackMemory(0)

type Config struct {
	// Native is the preferred transport, nil when unsupported.
	Native transport.Dialer

	Fallback         transport.Dialer
	FallbackDisabled bool
	// FallbackURL overrides the URL dialed by the fallback.
	FallbackURL string

	// HeadStart defaults to DefaultHeadStart. A negative value disables it.
	HeadStart time.Duration

	// Memory records fallback wins. DefaultMemory is used when nil.
	Memory  *FallbackMemory
	Logger  mlog.Logger
	Metrics *metrics.Metrics
}

func (c Config) memory() *FallbackMemory {
	if c.Memory != nil {
		return c.Memory
	}
	return DefaultMemory
}

func (c Config) headStart(url string) time.Duration {
	if c.Native == nil || c.memory().Won(url) {
		return 0
	}
	switch {
	case c.HeadStart < 0:
		return 0
	case c.HeadStart == 0:
		return DefaultHeadStart
	default:
		return c.HeadStart
	}
}

type Result struct {
	Session  transport.Session
	Fallback bool
}

type attempt struct {
	session  transport.Session
	err      error
	fallback bool
}

// Race returns the first session that becomes ready. The other attempt is
// cancelled, and closed should it still succeed. If every attempt fails the
// last failure is returned.
func Race(ctx context.Context, url string, cfg Config) (Result, error) {
	logger := mlog.OrNop(cfg.Logger)

	native := cfg.Native
	fallback := cfg.Fallback
	if cfg.FallbackDisabled {
		fallback = nil
	}
	if native == nil && fallback == nil {
		return Result{}, ErrNoTransportAvailable
	}

	fallbackURL := cfg.FallbackURL
	if fallbackURL == "" {
		fallbackURL = url
	}
	headStart := cfg.headStart(url)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	results := make(chan attempt, 2)
	pending := 0

	if native != nil {
		pending++
		go func() {
			s, err := native.Dial(ctx, url)
			results <- attempt{session: s, err: err}
		}()
	}

	if fallback != nil {
		pending++
		go func() {
			if headStart > 0 {
				timer := time.NewTimer(headStart)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					results <- attempt{err: ctx.Err(), fallback: true}
					return
				}
				logger.Debug("no native transport after head start, attempting fallback", "url", fallbackURL, "headStart", headStart)
			}
			s, err := fallback.Dial(ctx, fallbackURL)
			results <- attempt{session: s, err: err, fallback: true}
		}()
	}

	var lastErr error
	for pending > 0 {
		a := <-results
		pending--

		if a.err != nil {
			lastErr = a.err
			logger.Debug("transport attempt failed", "url", url, "fallback", a.fallback, "error", a.err)
			continue
		}

		cancel()
		if pending > 0 {
			go closeLate(results, pending, logger)
		}

		elapsed := time.Since(start)
		if a.fallback {
			logger.Warn("using fallback transport, the experience may be degraded", "url", url, "elapsed", elapsed)
			cfg.memory().Remember(url)
			cfg.Metrics.RaceWon("fallback", elapsed)
		} else {
			cfg.Metrics.RaceWon("native", elapsed)
		}

		return Result{Session: a.session, Fallback: a.fallback}, nil
	}

	return Result{}, lastErr
}

// closeLate releases sessions of attempts that finished after the winner.
func closeLate(results <-chan attempt, pending int, logger mlog.Logger) {
	for ; pending > 0; pending-- {
		a := <-results
		if a.err == nil && a.session != nil {
			logger.Debug("closing transport that lost the race", "fallback", a.fallback)
			a.session.CloseWithError(transport.CodeCancelled, "lost race")
		}
	}
}
