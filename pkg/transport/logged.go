package transport

import (
	"context"
	"time"

	"github.com/QYUbit/moqsession/pkg/mlog"
)

// WithLogging decorates d so that dial attempts and session closes are
// logged under the given transport name.
func WithLogging(d Dialer, name string, logger mlog.Logger) Dialer {
	logger = mlog.With(mlog.OrNop(logger), "transport", name)

	return DialerFunc(func(ctx context.Context, url string) (Session, error) {
		start := time.Now()
		logger.Debug("dialing", "url", url)

		s, err := d.Dial(ctx, url)
		if err != nil {
			logger.Debug("dial failed", "url", url, "error", err, "elapsed", time.Since(start))
			return nil, err
		}
		logger.Debug("session ready", "url", url, "elapsed", time.Since(start))

		go func() {
			<-s.Context().Done()
			logger.Debug("session closed", "url", url, "cause", context.Cause(s.Context()))
		}()

		return &loggedSession{Session: s, logger: logger}, nil
	})
}

type loggedSession struct {
	Session
	logger mlog.Logger
}

func (s *loggedSession) CloseWithError(code ErrorCode, reason string) error {
	s.logger.Debug("closing session", "code", code, "reason", reason)
	return s.Session.CloseWithError(code, reason)
}
