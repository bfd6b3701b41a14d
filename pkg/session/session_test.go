package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/QYUbit/moqsession/pkg/control"
	"github.com/QYUbit/moqsession/pkg/media"
	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/object"
	"github.com/QYUbit/moqsession/pkg/race"
	"github.com/QYUbit/moqsession/pkg/setup"
	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/QYUbit/moqsession/pkg/transport/muxsession"
	"github.com/QYUbit/moqsession/pkg/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const timeout = 5 * time.Second

type recordLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf("%s %s %v", level, msg, kv))
}

func (l *recordLogger) Info(s string, kv ...any)  { l.log("INFO", s, kv) }
func (l *recordLogger) Error(s string, kv ...any) { l.log("ERROR", s, kv) }
func (l *recordLogger) Debug(s string, kv ...any) { l.log("DEBUG", s, kv) }
func (l *recordLogger) Warn(s string, kv ...any)  { l.log("WARN", s, kv) }

func (l *recordLogger) has(prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// relay is the server end of an in-memory connection.
type relay struct {
	ses *muxsession.Session
	ch  *control.Channel
}

func pipe(t *testing.T) (*muxsession.Session, *muxsession.Session) {
	t.Helper()

	a, b := net.Pipe()
	client, err := muxsession.Client(a, nil)
	require.NoError(t, err)
	server, err := muxsession.Server(b, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		client.CloseWithError(transport.CodeNoError, "")
		server.CloseWithError(transport.CodeNoError, "")
	})
	return client, server
}

func connect(t *testing.T, variant control.Variant, logger mlog.Logger) (*Connection, *relay) {
	t.Helper()

	client, server := pipe(t)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	str, err := client.OpenStream(ctx)
	require.NoError(t, err)
	relayStr, err := server.AcceptStream(ctx)
	require.NoError(t, err)

	version := setup.VersionDraft
	if variant == control.VariantLite {
		version = setup.VersionLite
	}
	res := setup.Result{Version: version, Variant: variant, Parameters: &wire.Parameters{}}

	conn := New(client, str, wire.NewReader(str), res, Options{URL: "https://relay.test/moq", Logger: logger})
	t.Cleanup(func() { conn.Close() })

	return conn, &relay{
		ses: server,
		ch:  control.NewChannel(relayStr, wire.NewReader(relayStr), variant.Codec(), nil),
	}
}

func (r *relay) send(t *testing.T, m control.Message) {
	t.Helper()
	require.NoError(t, r.ch.Write(m))
}

func (r *relay) read(t *testing.T) control.Message {
	t.Helper()

	type result struct {
		m   control.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := r.ch.Read()
		ch <- result{m, err}
	}()

	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.m
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a control message")
		return nil
	}
}

func expect[T control.Message](t *testing.T, r *relay) T {
	t.Helper()
	m := r.read(t)
	v, ok := m.(T)
	require.Truef(t, ok, "expected %T, got %T", *new(T), m)
	return v
}

// sendGroup writes one complete object stream.
func (r *relay) sendGroup(t *testing.T, h object.GroupHeader, frames ...string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	str, err := r.ses.OpenUniStream(ctx)
	require.NoError(t, err)

	b, err := h.Append(nil)
	require.NoError(t, err)
	for _, f := range frames {
		b = object.AppendFrame(b, object.Frame{Payload: []byte(f)}, h.Flags)
	}
	b = object.AppendFrame(b, object.Frame{End: true}, h.Flags)

	_, err = str.Write(b)
	require.NoError(t, err)
	require.NoError(t, str.Close())
}

func readGroup(t *testing.T, track *media.Track) (uint64, []string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, err := track.NextGroup(ctx)
	require.NoError(t, err)

	var frames []string
	for {
		f, err := g.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			return g.ID(), frames
		}
		require.NoError(t, err)
		frames = append(frames, string(f))
	}
}

// probe round-trips a track status request. Any control message the client
// wrote before it would be read instead of the request.
func probe(t *testing.T, conn *Connection, r *relay) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, err := conn.TrackStatus(ctx, "probe", "probe")
		errc <- err
	}()

	req := expect[*control.TrackStatusRequest](t, r)
	require.Equal(t, "probe", req.Namespace)
	r.send(t, &control.TrackStatus{RequestID: req.RequestID})
	require.NoError(t, <-errc)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for close")
	}
}

// subscribe requests a track and accepts the subscription on the relay.
func subscribe(t *testing.T, conn *Connection, r *relay, path, name string) (*media.Track, uint64) {
	t.Helper()

	track := conn.Consume(path).Subscribe(name, 1)
	sub := expect[*control.Subscribe](t, r)
	require.Equal(t, path, sub.Namespace)
	require.Equal(t, name, sub.Track)

	r.send(t, &control.SubscribeOk{RequestID: sub.RequestID, TrackAlias: sub.RequestID})
	require.Eventually(t, func() bool {
		return !conn.subscriber.subscribes.has(sub.RequestID)
	}, timeout, 5*time.Millisecond)
	return track, sub.RequestID
}

func TestSubscribeOkResolvesOnce(t *testing.T) {
	logger := &recordLogger{}
	conn, r := connect(t, control.VariantIETF, logger)

	// Two namespace requests take ids 0 and 2.
	conn.Announced("a")
	conn.Announced("b")
	expect[*control.SubscribeNamespace](t, r)
	expect[*control.SubscribeNamespace](t, r)

	track := conn.Consume("demo").Subscribe("video", 3)
	sub := expect[*control.Subscribe](t, r)
	require.Equal(t, uint64(4), sub.RequestID)
	require.Equal(t, "demo", sub.Namespace)
	require.Equal(t, "video", sub.Track)
	require.Equal(t, uint8(3), sub.Priority)
	require.Equal(t, control.FilterLatestObject, sub.FilterType)
	require.True(t, sub.Forward)
	require.True(t, conn.subscriber.subscribes.has(4))

	r.send(t, &control.SubscribeOk{RequestID: 4, TrackAlias: 4})
	require.Eventually(t, func() bool {
		return conn.subscriber.subscribes.len() == 0
	}, timeout, 5*time.Millisecond)

	r.sendGroup(t, object.GroupHeader{RequestID: 4, GroupID: 7}, "key", "delta")
	id, frames := readGroup(t, track)
	require.Equal(t, uint64(7), id)
	require.Equal(t, []string{"key", "delta"}, frames)

	r.send(t, &control.SubscribeOk{RequestID: 4, TrackAlias: 4})
	require.Eventually(t, func() bool {
		return logger.has("WARN subscribe ok for unknown request")
	}, timeout, 5*time.Millisecond)

	probe(t, conn, r)
	require.NoError(t, conn.Err())
	require.Equal(t, StatusConnected, conn.Status())
}

func TestUnknownTrackAbortsOnlyThatStream(t *testing.T) {
	logger := &recordLogger{}
	conn, r := connect(t, control.VariantIETF, logger)

	track, id := subscribe(t, conn, r, "demo", "video")

	r.sendGroup(t, object.GroupHeader{RequestID: 99, GroupID: 1}, "lost")
	r.sendGroup(t, object.GroupHeader{RequestID: id, GroupID: 2, Flags: object.Flags{HasSubgroup: true}, SubgroupID: 5}, "kept")

	gid, frames := readGroup(t, track)
	require.Equal(t, uint64(2), gid)
	require.Equal(t, []string{"kept"}, frames)

	require.Eventually(t, func() bool {
		return logger.has("ERROR object stream aborted")
	}, timeout, 5*time.Millisecond)
	require.NoError(t, conn.Err())

	select {
	case <-conn.Done():
		t.Fatal("connection closed by a bad object stream")
	default:
	}
}

func TestUnsupportedMessageIsFatal(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	r.send(t, &control.Opaque{Kind: control.TypeFetch, RequestID: 1, Body: []byte{0x01, 0x02}})

	waitDone(t, conn.Done())
	require.ErrorIs(t, conn.Err(), ErrUnsupportedMessage)
	require.Equal(t, StatusDisconnected, conn.Status())
}

func TestSetupAfterHandshakeIsFatal(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	r.send(t, &control.ServerSetup{Version: setup.VersionDraft, Parameters: &wire.Parameters{}})

	waitDone(t, conn.Done())
	require.ErrorIs(t, conn.Err(), ErrUnexpectedSetup)
}

func TestIgnoredMessagesKeepConnection(t *testing.T) {
	logger := &recordLogger{}
	conn, r := connect(t, control.VariantIETF, logger)

	r.send(t, &control.MaxRequestID{RequestID: 100})
	r.send(t, &control.RequestsBlocked{MaximumRequestID: 100})

	probe(t, conn, r)
	require.True(t, logger.has("WARN ignoring control message"))
	require.NoError(t, conn.Err())
}

func TestCloseRejectsPendingRequests(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	track := conn.Consume("demo").Subscribe("video", 0)
	expect[*control.Subscribe](t, r)

	errc := make(chan error, 1)
	go func() {
		_, err := conn.TrackStatus(context.Background(), "demo", "video")
		errc <- err
	}()
	expect[*control.TrackStatusRequest](t, r)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	waitDone(t, track.Done())
	require.ErrorIs(t, track.Err(), ErrConnectionClosed)
	require.ErrorIs(t, <-errc, ErrConnectionClosed)
	require.NoError(t, conn.Err())
	require.Zero(t, conn.subscriber.subscribes.len())
}

func TestPeerCloseRejectsPendingRequests(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	track := conn.Consume("demo").Subscribe("video", 0)
	expect[*control.Subscribe](t, r)

	r.ses.CloseWithError(transport.CodeNoError, "bye")

	waitDone(t, conn.Done())
	waitDone(t, track.Done())
	require.ErrorIs(t, track.Err(), ErrConnectionClosed)

	_, err := conn.TrackStatus(context.Background(), "demo", "video")
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.ErrorIs(t, conn.Consume("late").Subscribe("x", 0).Err(), media.ErrClosed)
}

func TestSubscribeError(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	track := conn.Consume("demo").Subscribe("video", 0)
	sub := expect[*control.Subscribe](t, r)
	r.send(t, &control.SubscribeError{RequestID: sub.RequestID, Code: control.SubscribeTrackDoesNotExist, Reason: "no such track"})

	waitDone(t, track.Done())
	var serr *SubscribeError
	require.ErrorAs(t, track.Err(), &serr)
	require.Equal(t, control.SubscribeTrackDoesNotExist, serr.Code)
	require.Equal(t, "no such track", serr.Reason)

	require.Eventually(t, func() bool {
		return conn.subscriber.lookup(sub.RequestID) == nil
	}, timeout, 5*time.Millisecond)
	probe(t, conn, r)
}

func TestPublishDoneEndsTrack(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	track, id := subscribe(t, conn, r, "demo", "video")
	r.sendGroup(t, object.GroupHeader{RequestID: id, GroupID: 0}, "only")
	_, frames := readGroup(t, track)
	require.Equal(t, []string{"only"}, frames)

	r.send(t, &control.PublishDone{RequestID: id, StatusCode: control.StatusTrackEnded, StreamCount: 1})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := track.NextGroup(ctx)
	require.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool {
		return conn.subscriber.lookup(id) == nil
	}, timeout, 5*time.Millisecond)
	probe(t, conn, r)
}

func TestPublishDoneWithErrorStatus(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	track, id := subscribe(t, conn, r, "demo", "video")
	r.send(t, &control.PublishDone{RequestID: id, StatusCode: control.StatusExpired, Reason: "expired"})

	waitDone(t, track.Done())
	var derr *PublishDoneError
	require.ErrorAs(t, track.Err(), &derr)
	require.Equal(t, control.StatusExpired, derr.Code)
}

func TestTrackCloseSendsUnsubscribe(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	track, id := subscribe(t, conn, r, "demo", "video")
	track.Close()

	unsub := expect[*control.Unsubscribe](t, r)
	require.Equal(t, id, unsub.RequestID)
}

func TestGoAwayClosesGracefully(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	r.send(t, &control.GoAway{NewSessionURI: "https://other.test/moq"})

	waitDone(t, conn.Done())
	require.NoError(t, conn.Err())
	uri, ok := conn.GoAway()
	require.True(t, ok)
	require.Equal(t, "https://other.test/moq", uri)
}

func TestAnnounced(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	r.send(t, &control.PublishNamespace{RequestID: 1, Namespace: "live/a"})
	require.Eventually(t, func() bool {
		return conn.subscriber.active.Contains("live/a")
	}, timeout, 5*time.Millisecond)

	a := conn.Announced("live")
	req := expect[*control.SubscribeNamespace](t, r)
	require.Equal(t, "live", req.Prefix)
	r.send(t, &control.SubscribeNamespaceOk{RequestID: req.RequestID})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	next := func() media.Announcement {
		e, err := a.Next(ctx)
		require.NoError(t, err)
		return e
	}
	require.Equal(t, media.Announcement{Path: "live/a", Active: true}, next())

	r.send(t, &control.PublishNamespace{RequestID: 3, Namespace: "other/b"})
	r.send(t, &control.PublishNamespace{RequestID: 5, Namespace: "live/c"})
	require.Equal(t, media.Announcement{Path: "live/c", Active: true}, next())

	r.send(t, &control.PublishNamespaceDone{Namespace: "live/a"})
	require.Equal(t, media.Announcement{Path: "live/a", Active: false}, next())

	a.Close()
	unsub := expect[*control.UnsubscribeNamespace](t, r)
	require.Equal(t, req.RequestID, unsub.RequestID)
}

func TestSubscribeNamespaceErrorClosesListener(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	a := conn.Announced("live")
	req := expect[*control.SubscribeNamespace](t, r)
	r.send(t, &control.SubscribeNamespaceError{RequestID: req.RequestID, Code: 1, Reason: "denied"})

	waitDone(t, a.Done())
	_, err := a.Next(context.Background())
	var rerr *RequestError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "denied", rerr.Reason)

	probe(t, conn, r)
	require.NoError(t, conn.Err())
}

func TestPublishServesSubscription(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	b := media.NewBroadcast()
	require.NoError(t, conn.Publish("demo", b))
	require.ErrorIs(t, conn.Publish("demo", media.NewBroadcast()), ErrBroadcastExists)

	ann := expect[*control.PublishNamespace](t, r)
	require.Equal(t, "demo", ann.Namespace)
	r.send(t, &control.PublishNamespaceOk{RequestID: ann.RequestID})

	r.send(t, &control.Subscribe{
		RequestID:  1,
		Namespace:  "demo",
		Track:      "video",
		Priority:   2,
		Forward:    true,
		FilterType: control.FilterLatestObject,
	})
	ok := expect[*control.SubscribeOk](t, r)
	require.Equal(t, uint64(1), ok.RequestID)
	require.Equal(t, uint64(1), ok.TrackAlias)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := b.Requested(ctx)
	require.NoError(t, err)
	require.Equal(t, "video", req.Track.Name)
	require.Equal(t, uint8(2), req.Priority)

	g, err := req.Track.AppendGroup()
	require.NoError(t, err)
	require.NoError(t, g.WriteFrame([]byte("hello")))
	require.NoError(t, g.WriteFrame([]byte{}))
	g.Close()

	str, err := r.ses.AcceptUniStream(ctx)
	require.NoError(t, err)
	rd := wire.NewReader(str)

	h, err := object.ReadGroupHeader(rd)
	require.NoError(t, err)
	require.Equal(t, uint64(1), h.RequestID)
	require.Equal(t, uint64(0), h.GroupID)
	require.Equal(t, uint8(2), h.Priority)

	f, err := object.ReadFrame(rd, h.Flags)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), f.Payload)
	f, err = object.ReadFrame(rd, h.Flags)
	require.NoError(t, err)
	require.Empty(t, f.Payload)
	require.False(t, f.End)

	done, err := rd.Done()
	require.NoError(t, err)
	require.True(t, done)

	req.Track.Close()
	pd := expect[*control.PublishDone](t, r)
	require.Equal(t, uint64(1), pd.RequestID)
	require.Equal(t, control.StatusTrackEnded, pd.StatusCode)
	require.Equal(t, uint64(1), pd.StreamCount)

	b.Close()
	unann := expect[*control.PublishNamespaceDone](t, r)
	require.Equal(t, "demo", unann.Namespace)
}

func TestUnsubscribeEndsServedTrack(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	b := media.NewBroadcast()
	require.NoError(t, conn.Publish("demo", b))
	expect[*control.PublishNamespace](t, r)

	r.send(t, &control.Subscribe{RequestID: 1, Namespace: "demo", Track: "audio", FilterType: control.FilterLatestObject})
	expect[*control.SubscribeOk](t, r)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := b.Requested(ctx)
	require.NoError(t, err)

	r.send(t, &control.Unsubscribe{RequestID: 1})
	waitDone(t, req.Track.Done())
	require.ErrorIs(t, req.Track.Err(), media.ErrCancelled)

	pd := expect[*control.PublishDone](t, r)
	require.Equal(t, control.StatusSubscriptionEnded, pd.StatusCode)
}

func TestSubscribeUnknownBroadcast(t *testing.T) {
	_, r := connect(t, control.VariantIETF, nil)

	r.send(t, &control.Subscribe{RequestID: 1, Namespace: "missing", Track: "video", FilterType: control.FilterLatestObject})

	serr := expect[*control.SubscribeError](t, r)
	require.Equal(t, uint64(1), serr.RequestID)
	require.Equal(t, control.SubscribeTrackDoesNotExist, serr.Code)
}

func TestTrackStatus(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type result struct {
		status *control.TrackStatus
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := conn.TrackStatus(ctx, "demo", "video")
		ch <- result{s, err}
	}()

	req := expect[*control.TrackStatusRequest](t, r)
	require.Equal(t, "demo", req.Namespace)
	require.Equal(t, "video", req.Track)
	r.send(t, &control.TrackStatus{RequestID: req.RequestID, StatusCode: control.TrackInProgress, LargestGroup: 7, LargestObject: 3})

	res := <-ch
	require.NoError(t, res.err)
	require.Equal(t, uint64(7), res.status.LargestGroup)

	r.send(t, &control.TrackStatusRequest{RequestID: 9, Namespace: "demo", Track: "video"})
	status := expect[*control.TrackStatus](t, r)
	require.Equal(t, uint64(9), status.RequestID)
	require.Equal(t, control.TrackDoesNotExist, status.StatusCode)
}

func TestTrackStatusContextCancelled(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := conn.TrackStatus(ctx, "demo", "video")
		errc <- err
	}()
	expect[*control.TrackStatusRequest](t, r)
	cancel()

	require.ErrorIs(t, <-errc, context.Canceled)
	require.Zero(t, conn.subscriber.statuses.len())
}

func TestLiteVariant(t *testing.T) {
	conn, r := connect(t, control.VariantLite, nil)
	require.Equal(t, control.VariantLite, conn.Variant())
	require.Equal(t, setup.VersionLite, conn.Version())

	track, id := subscribe(t, conn, r, "demo", "video")
	r.sendGroup(t, object.GroupHeader{RequestID: id, GroupID: 3}, "lite")

	gid, frames := readGroup(t, track)
	require.Equal(t, uint64(3), gid)
	require.Equal(t, []string{"lite"}, frames)
}

// serveHandshake answers one CLIENT_SETUP on the first bidirectional stream.
func serveHandshake(server *muxsession.Session, dialect setup.Dialect, version uint64) <-chan *control.ClientSetup {
	offered := make(chan *control.ClientSetup, 1)
	go func() {
		defer close(offered)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		str, err := server.AcceptStream(ctx)
		if err != nil {
			return
		}
		m, err := control.Decode(wire.NewReader(str), dialect.Codec())
		if err != nil {
			return
		}
		cs, ok := m.(*control.ClientSetup)
		if !ok {
			return
		}
		b, err := control.Encode(nil, &control.ServerSetup{Version: version, Parameters: &wire.Parameters{}}, dialect.Codec())
		if err != nil {
			return
		}
		if _, err := str.Write(b); err != nil {
			return
		}
		offered <- cs
	}()
	return offered
}

func dialerFor(ses transport.Session) transport.Dialer {
	return transport.DialerFunc(func(context.Context, string) (transport.Session, error) {
		return ses, nil
	})
}

func TestConnectRejectsUnsupportedVersion(t *testing.T) {
	client, server := pipe(t)
	offered := serveHandshake(server, setup.DialectDraft14Parity, 0x01)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := Connect(ctx, "https://relay.test/moq", Config{
		Dialect:          setup.DialectDraft14Parity,
		Native:           dialerFor(client),
		FallbackDisabled: true,
	})
	require.ErrorIs(t, err, setup.ErrUnsupportedVersion)
	require.ErrorIs(t, err, setup.ErrHandshakeFailed)

	cs := <-offered
	require.NotNil(t, cs)
	require.Equal(t, []uint64{setup.VersionDraft}, cs.Versions)
}

func TestConnectLite(t *testing.T) {
	client, server := pipe(t)
	offered := serveHandshake(server, setup.DialectLiteBytes, setup.VersionLite)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := Connect(ctx, "https://relay.test/moq", Config{
		Native:           dialerFor(client),
		FallbackDisabled: true,
	})
	require.NoError(t, err)
	defer conn.Close()

	cs := <-offered
	require.Equal(t, []uint64{setup.VersionLite, setup.VersionDraft}, cs.Versions)
	require.Equal(t, control.VariantLite, conn.Variant())
	require.False(t, conn.Fallback())
	require.NotEmpty(t, conn.ID())
	require.Equal(t, "https://relay.test/moq", conn.URL())
}

func TestConnectNoTransport(t *testing.T) {
	_, err := Connect(context.Background(), "https://relay.test/moq", Config{
		Fallback:         dialerFor(nil),
		FallbackDisabled: true,
	})
	require.ErrorIs(t, err, race.ErrNoTransportAvailable)
}

// TestConcurrentRequestsKeepIDOrder issues namespace and track status
// requests from many goroutines. The relay must only ever see growing ids.
func TestConcurrentRequestsKeepIDOrder(t *testing.T) {
	conn, r := connect(t, control.VariantIETF, nil)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	const n = 16
	listeners := make([]*media.Announced, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			listeners[i] = conn.Announced(fmt.Sprintf("live/%d", i))
		}(i)
		go func() {
			defer wg.Done()
			if _, err := conn.TrackStatus(ctx, "live", "video"); err != nil {
				t.Error(err)
			}
		}()
	}

	var last uint64
	for i := 0; i < 2*n; i++ {
		var id uint64
		switch m := r.read(t).(type) {
		case *control.SubscribeNamespace:
			id = m.RequestID
		case *control.TrackStatusRequest:
			id = m.RequestID
			r.send(t, &control.TrackStatus{RequestID: m.RequestID})
		default:
			t.Fatalf("unexpected %T", m)
		}
		if i == 0 {
			require.Equal(t, uint64(0), id)
		} else {
			require.Greater(t, id, last)
		}
		last = id
	}
	require.Equal(t, uint64(2*(2*n-1)), last)

	wg.Wait()
	for _, a := range listeners {
		a.Close()
	}
}

// TestConnectRemembersFallback connects twice without configuring a memory.
// The first fallback win is recorded, so the second connect does not wait
// out the native head start.
func TestConnectRemembersFallback(t *testing.T) {
	const url = "https://sticky.test/moq"
	t.Cleanup(func() { race.DefaultMemory.Forget(url) })

	stalled := transport.DialerFunc(func(ctx context.Context, _ string) (transport.Session, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, server := pipe(t)
	serveHandshake(server, setup.DialectLiteBytes, setup.VersionLite)
	first, err := Connect(ctx, url, Config{
		Native:    stalled,
		Fallback:  dialerFor(client),
		HeadStart: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.True(t, first.Fallback())
	first.Close()
	require.True(t, race.DefaultMemory.Won(url))

	client, server = pipe(t)
	serveHandshake(server, setup.DialectLiteBytes, setup.VersionLite)
	start := time.Now()
	second, err := Connect(ctx, url, Config{
		Native:    stalled,
		Fallback:  dialerFor(client),
		HeadStart: time.Hour,
	})
	require.NoError(t, err)
	defer second.Close()
	require.True(t, second.Fallback())
	require.Less(t, time.Since(start), timeout)
}
