package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/QYUbit/moqsession/pkg/control"
	"github.com/QYUbit/moqsession/pkg/media"
	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/object"
	"github.com/QYUbit/moqsession/pkg/transport"
	"github.com/QYUbit/moqsession/pkg/wire"
	mapset "github.com/deckarep/golang-set/v2"
)

// subscription is a track requested from the relay, keyed by the request id
// the relay tags its object streams with.
type subscription struct {
	id    uint64
	path  string
	track *media.Track

	// ended is set when the relay finished the subscription itself.
	ended atomic.Bool
}

type subscriber struct {
	conn *Connection

	subscribes *pending[*control.SubscribeOk]
	statuses   *pending[*control.TrackStatus]

	mu        sync.Mutex
	tracks    map[uint64]*subscription
	listeners map[uint64]*media.Announced
	active    mapset.Set[string]
}

func newSubscriber(c *Connection) *subscriber {
	return &subscriber{
		conn:       c,
		subscribes: newPending[*control.SubscribeOk](),
		statuses:   newPending[*control.TrackStatus](),
		tracks:     make(map[uint64]*subscription),
		listeners:  make(map[uint64]*media.Announced),
		active:     mapset.NewSet[string](),
	}
}

// close rejects every outstanding request and ends every track and
// listener with err.
func (s *subscriber) close(err error) {
	s.subscribes.close(err)
	s.statuses.close(err)

	s.mu.Lock()
	tracks := s.tracks
	listeners := s.listeners
	s.tracks = make(map[uint64]*subscription)
	s.listeners = make(map[uint64]*media.Announced)
	s.mu.Unlock()

	for _, sub := range tracks {
		sub.track.CloseWithError(err)
	}
	for _, a := range listeners {
		a.CloseWithError(err)
	}
}

// ==================================================================
// Tracks
// ==================================================================

func (s *subscriber) consume(path string) *media.Broadcast {
	b := media.NewBroadcast()

	ok := s.conn.spawn(func() {
		for {
			req, err := b.Requested(s.conn.ctx)
			if err != nil {
				if s.conn.ctx.Err() != nil {
					b.CloseWithError(ErrConnectionClosed)
				}
				return
			}
			if !s.conn.spawn(func() { s.subscribe(path, req) }) {
				req.Track.CloseWithError(ErrConnectionClosed)
			}
		}
	})
	if !ok {
		b.CloseWithError(ErrConnectionClosed)
	}
	return b
}

// subscribe runs one track subscription from SUBSCRIBE until the track is
// closed by the consumer, by the relay or by the connection.
func (s *subscriber) subscribe(path string, req media.TrackRequest) {
	c := s.conn
	track := req.Track

	var wait <-chan outcome[*control.SubscribeOk]
	var sub *subscription
	id, err := c.writeRequest(func(id uint64) (control.Message, error) {
		w, err := s.subscribes.add(id)
		if err != nil {
			return nil, err
		}
		wait = w
		sub = &subscription{id: id, path: path, track: track}
		s.mu.Lock()
		s.tracks[id] = sub
		s.mu.Unlock()

		return &control.Subscribe{
			RequestID:  id,
			Namespace:  path,
			Track:      track.Name,
			Priority:   req.Priority,
			GroupOrder: control.GroupOrderAscending,
			Forward:    true,
			FilterType: control.FilterLatestObject,
		}, nil
	})
	if sub != nil {
		defer s.removeTrack(id)
	}
	if err != nil {
		s.subscribes.remove(id)
		track.CloseWithError(err)
		return
	}
	logger := mlog.With(c.logger, "request", id, "broadcast", path, "track", track.Name)
	logger.Debug("subscribe sent")

	select {
	case o := <-wait:
		if o.err != nil {
			logger.Debug("subscription refused", "error", o.err)
			track.CloseWithError(o.err)
			return
		}
		logger.Debug("subscription live", "alias", o.value.TrackAlias)
	case <-track.Done():
		s.subscribes.remove(id)
		if c.ctx.Err() == nil {
			c.writeAsync(&control.Unsubscribe{RequestID: id})
		}
		return
	}

	c.metrics.SubscriptionStarted()
	defer c.metrics.SubscriptionEnded()

	<-track.Done()
	if sub.ended.Load() || c.ctx.Err() != nil {
		return
	}
	logger.Debug("unsubscribing")
	c.writeAsync(&control.Unsubscribe{RequestID: id})
}

func (s *subscriber) lookup(id uint64) *subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks[id]
}

func (s *subscriber) removeTrack(id uint64) {
	s.mu.Lock()
	delete(s.tracks, id)
	s.mu.Unlock()
}

func (s *subscriber) handleSubscribeOk(m *control.SubscribeOk) {
	if !s.subscribes.resolve(m.RequestID, m) {
		s.conn.logger.Warn("subscribe ok for unknown request", "request", m.RequestID)
	}
}

func (s *subscriber) handleSubscribeError(m *control.SubscribeError) {
	err := &SubscribeError{Code: m.Code, Reason: m.Reason}
	if !s.subscribes.reject(m.RequestID, err) {
		s.conn.logger.Warn("subscribe error for unknown request", "request", m.RequestID, "code", m.Code)
	}
}

func (s *subscriber) handlePublishDone(m *control.PublishDone) {
	var err error
	if !m.Success() {
		err = &PublishDoneError{Code: m.StatusCode, Reason: m.Reason}
	}

	if s.subscribes.has(m.RequestID) {
		if err == nil {
			err = &PublishDoneError{Code: m.StatusCode, Reason: m.Reason}
		}
		s.subscribes.reject(m.RequestID, err)
		return
	}

	sub := s.lookup(m.RequestID)
	if sub == nil {
		s.conn.logger.Warn("publish done for unknown request", "request", m.RequestID)
		return
	}
	sub.ended.Store(true)
	if err != nil {
		sub.track.CloseWithError(err)
	} else {
		sub.track.Close()
	}
}

// ==================================================================
// Object streams
// ==================================================================

func (s *subscriber) serveObjects(str transport.ReceiveStream) {
	c := s.conn
	r := wire.NewReader(str)

	h, err := object.ReadGroupHeader(r)
	if err != nil {
		c.logger.Error("invalid object stream", "error", err)
		c.metrics.ObjectStream("invalid")
		str.CancelRead(transport.CodeInternal)
		return
	}

	if err := s.handleGroup(h, r, str); err != nil {
		c.logger.Error("object stream aborted", "request", h.RequestID, "group", h.GroupID, "error", err)
		c.metrics.ObjectStream("aborted")
		str.CancelRead(transport.CodeInternal)
		return
	}
	c.metrics.ObjectStream("complete")
}

// handleGroup copies the frames of one object stream into a new group of
// the subscribed track. It stops at the end of the stream, or when the group
// or the track is closed by the consumer.
func (s *subscriber) handleGroup(h object.GroupHeader, r *wire.Reader, str transport.ReceiveStream) error {
	sub := s.lookup(h.RequestID)
	if sub == nil {
		return fmt.Errorf("%w: request %d", ErrUnknownTrack, h.RequestID)
	}

	g := media.NewGroup(h.GroupID)
	if err := sub.track.WriteGroup(g); err != nil {
		str.CancelRead(transport.CodeCancelled)
		return nil
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-g.Done():
		case <-sub.track.Done():
		case <-stop:
			return
		}
		str.CancelRead(transport.CodeCancelled)
	}()

	closedLocally := func() bool {
		select {
		case <-g.Done():
			return true
		case <-sub.track.Done():
			g.CloseWithError(media.ErrCancelled)
			return true
		default:
			return false
		}
	}

	for {
		done, err := r.Done()
		if err == nil && done {
			g.Close()
			return nil
		}

		var f object.Frame
		if err == nil {
			f, err = object.ReadFrame(r, h.Flags)
		}
		if err != nil {
			if closedLocally() {
				return nil
			}
			g.CloseWithError(err)
			return err
		}

		if f.End {
			g.Close()
			return nil
		}
		if err := g.WriteFrame(f.Payload); err != nil {
			str.CancelRead(transport.CodeCancelled)
			return nil
		}
		s.conn.metrics.Frame(len(f.Payload))
	}
}

// ==================================================================
// Announcements
// ==================================================================

func (s *subscriber) announced(prefix string) *media.Announced {
	c := s.conn
	a := media.NewAnnounced(prefix)

	ok := c.spawn(func() {
		id, err := c.writeRequest(func(id uint64) (control.Message, error) {
			if err := s.addListener(id, a); err != nil {
				return nil, err
			}
			return &control.SubscribeNamespace{RequestID: id, Prefix: prefix}, nil
		})
		if err != nil {
			s.removeListener(id)
			a.CloseWithError(err)
			return
		}

		select {
		case <-a.Done():
		case <-c.ctx.Done():
			return
		}
		if s.removeListener(id) && c.ctx.Err() == nil {
			c.writeAsync(&control.UnsubscribeNamespace{RequestID: id})
		}
	})
	if !ok {
		a.CloseWithError(ErrConnectionClosed)
	}
	return a
}

// addListener registers a and replays the broadcasts already active. Once
// the connection is closing nothing is registered.
func (s *subscriber) addListener(id uint64, a *media.Announced) error {
	s.mu.Lock()
	if s.conn.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrConnectionClosed
	}
	s.listeners[id] = a
	known := s.active.ToSlice()
	sort.Strings(known)
	for _, path := range known {
		a.Append(media.Announcement{Path: path, Active: true})
	}
	s.mu.Unlock()
	return nil
}

// removeListener reports whether the listener was still registered.
func (s *subscriber) removeListener(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.listeners[id]
	delete(s.listeners, id)
	return ok
}

func (s *subscriber) handlePublishNamespace(m *control.PublishNamespace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.Add(m.Namespace) {
		s.conn.logger.Warn("duplicate announcement", "broadcast", m.Namespace)
		return
	}
	s.conn.logger.Debug("broadcast announced", "broadcast", m.Namespace)
	for _, a := range s.listeners {
		a.Append(media.Announcement{Path: m.Namespace, Active: true})
	}
}

func (s *subscriber) handlePublishNamespaceDone(m *control.PublishNamespaceDone) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.Contains(m.Namespace) {
		s.conn.logger.Warn("unannounce for unknown broadcast", "broadcast", m.Namespace)
		return
	}
	s.active.Remove(m.Namespace)
	s.conn.logger.Debug("broadcast unannounced", "broadcast", m.Namespace)
	for _, a := range s.listeners {
		a.Append(media.Announcement{Path: m.Namespace, Active: false})
	}
}

func (s *subscriber) handleSubscribeNamespaceOk(m *control.SubscribeNamespaceOk) {
	s.mu.Lock()
	_, ok := s.listeners[m.RequestID]
	s.mu.Unlock()

	if !ok {
		s.conn.logger.Warn("subscribe namespace ok for unknown request", "request", m.RequestID)
		return
	}
	s.conn.logger.Debug("subscribe namespace accepted", "request", m.RequestID)
}

// handleSubscribeNamespaceError ends only the refused listener.
func (s *subscriber) handleSubscribeNamespaceError(m *control.SubscribeNamespaceError) {
	s.mu.Lock()
	a, ok := s.listeners[m.RequestID]
	delete(s.listeners, m.RequestID)
	s.mu.Unlock()

	if !ok {
		s.conn.logger.Warn("subscribe namespace error for unknown request", "request", m.RequestID)
		return
	}
	a.CloseWithError(&RequestError{Kind: "subscribe namespace", Code: m.Code, Reason: m.Reason})
}

// ==================================================================
// Track status
// ==================================================================

func (s *subscriber) trackStatus(ctx context.Context, path, track string) (*control.TrackStatus, error) {
	c := s.conn
	var wait <-chan outcome[*control.TrackStatus]
	id, err := c.writeRequest(func(id uint64) (control.Message, error) {
		w, err := s.statuses.add(id)
		if err != nil {
			return nil, err
		}
		wait = w
		return &control.TrackStatusRequest{RequestID: id, Namespace: path, Track: track}, nil
	})
	if err != nil {
		s.statuses.remove(id)
		return nil, err
	}

	select {
	case o := <-wait:
		return o.value, o.err
	case <-ctx.Done():
		s.statuses.remove(id)
		return nil, ctx.Err()
	}
}

func (s *subscriber) handleTrackStatus(m *control.TrackStatus) {
	if !s.statuses.resolve(m.RequestID, m) {
		s.conn.logger.Warn("track status for unknown request", "request", m.RequestID)
	}
}
