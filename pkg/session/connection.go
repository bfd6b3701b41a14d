// Package session runs an established relay connection: the control message
// loop, the object stream demuxer, and the publisher and subscriber halves
// built on top of them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/QYUbit/moqsession/pkg/control"
	"github.com/QYUbit/moqsession/pkg/media"
	"github.com/QYUbit/moqsession/pkg/metrics"
	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/setup"
	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/QYUbit/moqsession/pkg/wire"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// errGoAway stops the control loop without failing the connection.
var errGoAway = errors.New("session: going away")

// Options describe a connection whose handshake already completed.
type Options struct {
	URL      string
	Fallback bool
	Logger   mlog.Logger
	Metrics  *metrics.Metrics
}

// Connection is one negotiated session with a relay. It runs until the
// relay closes it, a fatal protocol error occurs or Close is called.
type Connection struct {
	id       string
	url      string
	fallback bool

	session transport.Session
	stream  transport.Stream
	control *control.Channel

	version uint64
	variant control.Variant
	params  *wire.Parameters

	publisher  *publisher
	subscriber *subscriber

	ctx       context.Context
	cancel    context.CancelCauseFunc
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	err     error
	goAway  string
	gone    bool
	stopped bool
	tasks   sync.WaitGroup

	logger  mlog.Logger
	metrics *metrics.Metrics
}

// New takes over a session whose control stream str finished the handshake
// described by res. r must be the reader the handshake was decoded from.
func New(ses transport.Session, str transport.Stream, r *wire.Reader, res setup.Result, opts Options) *Connection {
	id := uuid.NewString()
	logger := mlog.With(mlog.OrNop(opts.Logger), "conn", id)

	ctx, cancel := context.WithCancelCause(context.Background())
	c := &Connection{
		id:       id,
		url:      opts.URL,
		fallback: opts.Fallback,
		session:  ses,
		stream:   str,
		control:  control.NewChannel(str, r, res.Variant.Codec(), logger),
		version:  res.Version,
		variant:  res.Variant,
		params:   res.Parameters,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   logger,
		metrics:  opts.Metrics,
	}
	c.publisher = newPublisher(c)
	c.subscriber = newSubscriber(c)

	logger.Info("connection established",
		"url", opts.URL,
		"version", fmt.Sprintf("0x%x", res.Version),
		"variant", res.Variant,
		"fallback", opts.Fallback)
	c.metrics.SessionOpened()

	go c.run()
	return c
}

// ==================================================================
// Lifecycle
// ==================================================================

func (c *Connection) run() {
	g, ctx := errgroup.WithContext(c.ctx)
	g.Go(func() error {
		err := c.runControl(ctx)
		c.terminate(err)
		return err
	})
	g.Go(func() error {
		err := c.runObjects(ctx)
		c.terminate(err)
		return err
	})
	g.Wait()

	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.subscriber.close(ErrConnectionClosed)
	c.publisher.close(ErrConnectionClosed)
	c.tasks.Wait()

	c.metrics.SessionClosed()
	close(c.done)
}

// spawn runs fn as a task the connection waits for before it is done. It
// reports false once the connection stopped accepting tasks.
func (c *Connection) spawn(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		fn()
	}()
	return true
}

// terminate closes the control stream and the transport. err is nil for a
// graceful close. Only the first call has an effect.
func (c *Connection) terminate(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()

		code, reason := transport.CodeNoError, "closed"
		if err != nil {
			code, reason = transport.CodeInternal, err.Error()
			c.logger.Error("connection failed", "error", err)
			c.cancel(err)
		} else {
			c.logger.Info("connection closed")
			c.cancel(ErrConnectionClosed)
		}

		var result *multierror.Error
		if cerr := c.stream.Close(); cerr != nil {
			result = multierror.Append(result, fmt.Errorf("close control stream: %w", cerr))
		}
		if cerr := c.session.CloseWithError(code, reason); cerr != nil {
			result = multierror.Append(result, fmt.Errorf("close session: %w", cerr))
		}
		if result.ErrorOrNil() != nil {
			c.logger.Debug("teardown incomplete", "error", result)
		}
	})
}

// Close ends the connection and waits until every task stopped. It is safe
// to call more than once.
func (c *Connection) Close() error {
	c.terminate(nil)
	<-c.done
	return nil
}

// Done is closed once the connection stopped.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Err returns the fatal error that ended the connection, nil while it runs
// or if it was closed gracefully.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// GoAway returns the session URI of a received GOAWAY.
func (c *Connection) GoAway() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.goAway, c.gone
}

func (c *Connection) Status() Status {
	select {
	case <-c.done:
		return StatusDisconnected
	default:
	}
	if c.ctx.Err() != nil {
		return StatusDisconnected
	}
	return StatusConnected
}

// ==================================================================
// Info
// ==================================================================

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) URL() string {
	return c.url
}

func (c *Connection) Version() uint64 {
	return c.version
}

func (c *Connection) Variant() control.Variant {
	return c.variant
}

// Fallback reports whether the connection runs on the fallback transport.
func (c *Connection) Fallback() bool {
	return c.fallback
}

func (c *Connection) ServerParameters() *wire.Parameters {
	return c.params
}

// ==================================================================
// Publish / Subscribe
// ==================================================================

// Publish announces b under path and serves subscriptions to its tracks
// until b is closed.
func (c *Connection) Publish(path string, b *media.Broadcast) error {
	return c.publisher.publish(path, b)
}

// Consume returns a broadcast whose tracks are subscribed from the relay as
// they are requested.
func (c *Connection) Consume(path string) *media.Broadcast {
	return c.subscriber.consume(path)
}

// Announced lists the broadcasts announced under prefix, followed by live
// updates, until the returned listener is closed.
func (c *Connection) Announced(prefix string) *media.Announced {
	return c.subscriber.announced(prefix)
}

// TrackStatus asks the relay for the state of one track.
func (c *Connection) TrackStatus(ctx context.Context, path, track string) (*control.TrackStatus, error) {
	return c.subscriber.trackStatus(ctx, path, track)
}

// ==================================================================
// Control loop
// ==================================================================

func (c *Connection) write(m control.Message) error {
	if err := c.control.Write(m); err != nil {
		return fmt.Errorf("write %s: %w", m.Type(), err)
	}
	c.metrics.ControlMessage("out", m.Type().String())
	return nil
}

// writeRequest writes a message that opens a request. build runs under the
// control write lock and must register whatever waits for the response.
// Errors from build are returned unwrapped with a nil message.
func (c *Connection) writeRequest(build func(id uint64) (control.Message, error)) (uint64, error) {
	var m control.Message
	id, err := c.control.WriteRequest(func(id uint64) (control.Message, error) {
		var err error
		m, err = build(id)
		return m, err
	})
	if err != nil {
		if m == nil {
			return id, err
		}
		return id, fmt.Errorf("write %s: %w", m.Type(), err)
	}
	c.metrics.ControlMessage("out", m.Type().String())
	return id, nil
}

// writeAsync writes from a task outside the control loop. A failed write
// means the control stream is gone, which the control loop reports.
func (c *Connection) writeAsync(m control.Message) {
	if err := c.write(m); err != nil {
		c.logger.Debug("control write failed", "error", err)
	}
}

func (c *Connection) runControl(ctx context.Context) error {
	for {
		m, err := c.control.Read()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("control read: %w", err)
		}
		c.metrics.ControlMessage("in", m.Type().String())

		if err := c.dispatch(m); err != nil {
			if errors.Is(err, errGoAway) {
				return nil
			}
			return err
		}
	}
}

func (c *Connection) dispatch(m control.Message) error {
	switch m := m.(type) {
	case *control.Subscribe:
		return c.publisher.handleSubscribe(m)
	case *control.Unsubscribe:
		c.publisher.handleUnsubscribe(m)
	case *control.TrackStatusRequest:
		return c.publisher.handleTrackStatusRequest(m)
	case *control.PublishNamespaceOk:
		c.publisher.handlePublishNamespaceOk(m)
	case *control.PublishNamespaceError:
		c.publisher.handlePublishNamespaceError(m)
	case *control.PublishNamespaceCancel:
		c.publisher.handlePublishNamespaceCancel(m)
	case *control.SubscribeNamespace:
		return c.publisher.handleSubscribeNamespace(m)
	case *control.UnsubscribeNamespace:
		c.publisher.handleUnsubscribeNamespace(m)

	case *control.SubscribeOk:
		c.subscriber.handleSubscribeOk(m)
	case *control.SubscribeError:
		c.subscriber.handleSubscribeError(m)
	case *control.PublishDone:
		c.subscriber.handlePublishDone(m)
	case *control.TrackStatus:
		c.subscriber.handleTrackStatus(m)
	case *control.PublishNamespace:
		c.subscriber.handlePublishNamespace(m)
	case *control.PublishNamespaceDone:
		c.subscriber.handlePublishNamespaceDone(m)
	case *control.SubscribeNamespaceOk:
		c.subscriber.handleSubscribeNamespaceOk(m)
	case *control.SubscribeNamespaceError:
		c.subscriber.handleSubscribeNamespaceError(m)

	case *control.GoAway:
		c.mu.Lock()
		c.goAway, c.gone = m.NewSessionURI, true
		c.mu.Unlock()
		c.logger.Info("relay is going away", "uri", m.NewSessionURI)
		return errGoAway

	case *control.Opaque:
		return fmt.Errorf("%w: %s", ErrUnsupportedMessage, m.Type())
	case *control.ClientSetup, *control.ServerSetup:
		return fmt.Errorf("%w: %s", ErrUnexpectedSetup, m.Type())

	case *control.MaxRequestID, *control.RequestsBlocked:
		c.logger.Warn("ignoring control message", "type", m.Type())
	default:
		c.logger.Warn("unhandled control message", "type", m.Type())
	}
	return nil
}

// ==================================================================
// Object streams
// ==================================================================

func (c *Connection) runObjects(ctx context.Context) error {
	for {
		str, err := c.session.AcceptUniStream(ctx)
		if err != nil {
			if ctx.Err() != nil || c.session.Context().Err() != nil {
				return nil
			}
			return fmt.Errorf("accept object stream: %w", err)
		}
		if !c.spawn(func() { c.subscriber.serveObjects(str) }) {
			str.CancelRead(transport.CodeCancelled)
			return nil
		}
	}
}
