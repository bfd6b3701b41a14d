// Package reload keeps a relay connection established, reconnecting with
// exponential backoff whenever it fails or closes.
package reload

import (
	"context"
	"sync"
	"time"

	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/session"
	"github.com/cenkalti/backoff/v3"
)

const (
	DefaultInitial    = time.Second
	DefaultMultiplier = 2.0
	DefaultMax        = 30 * time.Second
)

// ConnectFunc establishes one connection. session.Connect is used when nil.
type ConnectFunc func(ctx context.Context, url string, cfg session.Config) (*session.Connection, error)

type Config struct {
	URL     string
	Session session.Config

	// Backoff between attempts, reset after every successful connect.
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration

	Connect ConnectFunc
}

func (c Config) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval: c.Initial,
		Multiplier:      c.Multiplier,
		MaxInterval:     c.Max,
		Clock:           backoff.SystemClock,
	}
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultInitial
	}
	if b.Multiplier < 1 {
		b.Multiplier = DefaultMultiplier
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultMax
	}
	b.Reset()
	return b
}

// Reloader owns the connection to one relay URL.
type Reloader struct {
	cfg     Config
	connect ConnectFunc
	backoff *backoff.ExponentialBackOff
	logger  mlog.Logger

	mu          sync.Mutex
	url         string
	status      session.Status
	established *session.Connection
	changed     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New starts connecting to cfg.URL in the background.
func New(cfg Config) *Reloader {
	connect := cfg.Connect
	if connect == nil {
		connect = session.Connect
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Reloader{
		cfg:     cfg,
		connect: connect,
		backoff: cfg.backOff(),
		logger:  mlog.With(mlog.OrNop(cfg.Session.Logger), "url", cfg.URL),
		url:     cfg.URL,
		status:  session.StatusDisconnected,
		changed: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Reloader) run() {
	defer close(r.done)
	defer r.set(session.StatusDisconnected, nil)

	for r.ctx.Err() == nil {
		r.set(session.StatusConnecting, nil)

		conn, err := r.connect(r.ctx, r.currentURL(), r.cfg.Session)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			delay := r.backoff.NextBackOff()
			r.logger.Warn("connection error", "error", err, "retry", delay)
			r.set(session.StatusDisconnected, nil)
			if !r.sleep(delay) {
				return
			}
			r.cfg.Session.Metrics.Reconnect()
			continue
		}

		r.backoff.Reset()
		r.set(session.StatusConnected, conn)

		select {
		case <-conn.Done():
		case <-r.ctx.Done():
			conn.Close()
			return
		}

		if uri, ok := conn.GoAway(); ok && uri != "" {
			r.mu.Lock()
			r.url = uri
			r.mu.Unlock()
		}
		r.logger.Info("connection lost, reconnecting", "error", conn.Err())
		r.set(session.StatusDisconnected, nil)
		r.cfg.Session.Metrics.Reconnect()
	}
}

func (r *Reloader) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Reloader) set(status session.Status, conn *session.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == status && r.established == conn {
		return
	}
	r.status = status
	r.established = conn
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *Reloader) currentURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}

func (r *Reloader) Status() session.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Changed is closed on the next status change.
func (r *Reloader) Changed() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed
}

// Established returns the current connection, nil while disconnected.
func (r *Reloader) Established() *session.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.established
}

// Connection waits until a connection is established.
func (r *Reloader) Connection(ctx context.Context) (*session.Connection, error) {
	for {
		r.mu.Lock()
		conn, changed := r.established, r.changed
		r.mu.Unlock()

		if conn != nil {
			return conn, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.done:
			return nil, session.ErrConnectionClosed
		}
	}
}

// Close stops reconnecting and closes the current connection.
func (r *Reloader) Close() {
	r.cancel()
	<-r.done
}
