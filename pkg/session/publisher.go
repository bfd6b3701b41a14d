package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/QYUbit/moqsession/pkg/control"
	"github.com/QYUbit/moqsession/pkg/media"
	"github.com/QYUbit/moqsession/pkg/object"
	"github.com/QYUbit/moqsession/pkg/transport"
)

type publisher struct {
	conn *Connection

	mu         sync.Mutex
	broadcasts map[string]*media.Broadcast
	announces  map[uint64]string
	serving    map[uint64]*media.Track
}

func newPublisher(c *Connection) *publisher {
	return &publisher{
		conn:       c,
		broadcasts: make(map[string]*media.Broadcast),
		announces:  make(map[uint64]string),
		serving:    make(map[uint64]*media.Track),
	}
}

// close ends every served track with err. Broadcasts belong to the caller
// and stay open.
func (p *publisher) close(err error) {
	p.mu.Lock()
	serving := p.serving
	p.serving = make(map[uint64]*media.Track)
	p.broadcasts = make(map[string]*media.Broadcast)
	p.announces = make(map[uint64]string)
	p.mu.Unlock()

	for _, t := range serving {
		t.CloseWithError(err)
	}
}

// ==================================================================
// Announcements
// ==================================================================

func (p *publisher) publish(path string, b *media.Broadcast) error {
	c := p.conn
	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}

	registered := false
	id, err := c.writeRequest(func(id uint64) (control.Message, error) {
		p.mu.Lock()
		defer p.mu.Unlock()

		if _, ok := p.broadcasts[path]; ok {
			return nil, fmt.Errorf("%w: %s", ErrBroadcastExists, path)
		}
		p.broadcasts[path] = b
		p.announces[id] = path
		registered = true
		return &control.PublishNamespace{RequestID: id, Namespace: path}, nil
	})
	if err != nil {
		if registered {
			p.unpublish(path, b)
		}
		return err
	}
	c.logger.Debug("broadcast published", "broadcast", path, "request", id)

	ok := c.spawn(func() {
		select {
		case <-b.Done():
		case <-c.ctx.Done():
			return
		}
		if p.unpublish(path, b) && c.ctx.Err() == nil {
			c.logger.Debug("broadcast unpublished", "broadcast", path)
			c.writeAsync(&control.PublishNamespaceDone{Namespace: path})
		}
	})
	if !ok {
		p.unpublish(path, b)
		return ErrConnectionClosed
	}
	return nil
}

// unpublish reports whether b was still published under path.
func (p *publisher) unpublish(path string, b *media.Broadcast) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broadcasts[path] != b {
		return false
	}
	delete(p.broadcasts, path)
	return true
}

func (p *publisher) broadcast(path string) *media.Broadcast {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.broadcasts[path]
}

func (p *publisher) handlePublishNamespaceOk(m *control.PublishNamespaceOk) {
	p.mu.Lock()
	path, ok := p.announces[m.RequestID]
	delete(p.announces, m.RequestID)
	p.mu.Unlock()

	if !ok {
		p.conn.logger.Warn("publish namespace ok for unknown request", "request", m.RequestID)
		return
	}
	p.conn.logger.Debug("broadcast accepted", "broadcast", path)
}

// handlePublishNamespaceError withdraws the broadcast and closes it with
// the relay's reason.
func (p *publisher) handlePublishNamespaceError(m *control.PublishNamespaceError) {
	p.mu.Lock()
	path, ok := p.announces[m.RequestID]
	delete(p.announces, m.RequestID)
	b := p.broadcasts[path]
	if ok {
		delete(p.broadcasts, path)
	}
	p.mu.Unlock()

	if !ok || b == nil {
		p.conn.logger.Warn("publish namespace error for unknown request", "request", m.RequestID)
		return
	}
	p.conn.logger.Warn("broadcast refused", "broadcast", path, "code", m.Code, "reason", m.Reason)
	b.CloseWithError(&RequestError{Kind: "publish namespace", Code: m.Code, Reason: m.Reason})
}

func (p *publisher) handlePublishNamespaceCancel(m *control.PublishNamespaceCancel) {
	p.mu.Lock()
	b, ok := p.broadcasts[m.Namespace]
	delete(p.broadcasts, m.Namespace)
	p.mu.Unlock()

	if !ok {
		p.conn.logger.Warn("publish namespace cancel for unknown broadcast", "broadcast", m.Namespace)
		return
	}
	p.conn.logger.Warn("broadcast cancelled by relay", "broadcast", m.Namespace, "code", m.Code, "reason", m.Reason)
	b.CloseWithError(&RequestError{Kind: "publish namespace cancel", Code: m.Code, Reason: m.Reason})
}

// handleSubscribeNamespace accepts the request. Every broadcast is announced
// as soon as it is published, so there is nothing to replay.
func (p *publisher) handleSubscribeNamespace(m *control.SubscribeNamespace) error {
	return p.conn.write(&control.SubscribeNamespaceOk{RequestID: m.RequestID})
}

func (p *publisher) handleUnsubscribeNamespace(m *control.UnsubscribeNamespace) {
	p.conn.logger.Debug("namespace unsubscribed", "request", m.RequestID)
}

// ==================================================================
// Subscriptions
// ==================================================================

func (p *publisher) handleSubscribe(m *control.Subscribe) error {
	c := p.conn

	b := p.broadcast(m.Namespace)
	if b == nil {
		c.logger.Debug("subscribe for unknown broadcast", "broadcast", m.Namespace, "track", m.Track)
		return c.write(&control.SubscribeError{
			RequestID: m.RequestID,
			Code:      control.SubscribeTrackDoesNotExist,
			Reason:    "broadcast not found",
		})
	}

	p.mu.Lock()
	if _, ok := p.serving[m.RequestID]; ok {
		p.mu.Unlock()
		c.logger.Warn("duplicate subscribe", "request", m.RequestID)
		return nil
	}
	t := b.Subscribe(m.Track, m.Priority)
	p.serving[m.RequestID] = t
	p.mu.Unlock()

	err := c.write(&control.SubscribeOk{
		RequestID:  m.RequestID,
		TrackAlias: m.RequestID,
		GroupOrder: control.GroupOrderAscending,
	})
	if err != nil {
		return err
	}

	if !c.spawn(func() { p.serveTrack(m.RequestID, t) }) {
		t.CloseWithError(ErrConnectionClosed)
	}
	return nil
}

func (p *publisher) handleUnsubscribe(m *control.Unsubscribe) {
	p.mu.Lock()
	t, ok := p.serving[m.RequestID]
	p.mu.Unlock()

	if !ok {
		p.conn.logger.Warn("unsubscribe for unknown request", "request", m.RequestID)
		return
	}
	t.CloseWithError(media.ErrCancelled)
}

func (p *publisher) handleTrackStatusRequest(m *control.TrackStatusRequest) error {
	status := control.TrackInProgress
	if p.broadcast(m.Namespace) == nil {
		status = control.TrackDoesNotExist
	}
	return p.conn.write(&control.TrackStatus{RequestID: m.RequestID, StatusCode: status})
}

// serveTrack writes every group of t as its own object stream, then reports
// the end of the subscription with PUBLISH_DONE.
func (p *publisher) serveTrack(id uint64, t *media.Track) {
	c := p.conn
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	defer func() {
		p.mu.Lock()
		delete(p.serving, id)
		p.mu.Unlock()
	}()

	var (
		groups sync.WaitGroup
		mu     sync.Mutex
		count  uint64
	)

	var err error
	for {
		var g *media.Group
		g, err = t.NextGroup(ctx)
		if err != nil {
			break
		}

		groups.Add(1)
		go func() {
			defer groups.Done()
			if p.serveGroup(ctx, id, t.Priority, g) {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}

	if !errors.Is(err, io.EOF) {
		cancel()
	}
	groups.Wait()

	if c.ctx.Err() != nil {
		return
	}

	done := &control.PublishDone{RequestID: id, StreamCount: count}
	switch {
	case errors.Is(err, io.EOF):
		done.StatusCode = control.StatusTrackEnded
	case errors.Is(err, media.ErrCancelled):
		done.StatusCode = control.StatusSubscriptionEnded
	default:
		done.StatusCode = control.StatusInternalError
		done.Reason = err.Error()
	}
	c.writeAsync(done)
}

// serveGroup reports whether a stream was opened for g.
func (p *publisher) serveGroup(ctx context.Context, id uint64, priority uint8, g *media.Group) bool {
	c := p.conn

	str, err := c.session.OpenUniStream(ctx)
	if err != nil {
		c.logger.Debug("failed to open object stream", "request", id, "group", g.ID(), "error", err)
		g.CloseWithError(err)
		return false
	}

	// The stream end terminates the group, so empty frames stay intact.
	h := object.GroupHeader{
		RequestID: id,
		GroupID:   g.ID(),
		Priority:  priority,
		Flags:     object.Flags{HasEnd: true},
	}
	b, err := h.Append(nil)
	if err != nil {
		str.CancelWrite(transport.CodeInternal)
		return true
	}

	for {
		payload, err := g.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			b = object.AppendFrame(b, object.Frame{End: true}, h.Flags)
			if _, err := str.Write(b); err != nil {
				c.logger.Debug("object stream write failed", "request", id, "group", g.ID(), "error", err)
				str.CancelWrite(transport.CodeInternal)
				return true
			}
			str.Close()
			return true
		}
		if err != nil {
			str.CancelWrite(transport.CodeCancelled)
			return true
		}

		b = object.AppendFrame(b, object.Frame{Payload: payload}, h.Flags)
		if _, err := str.Write(b); err != nil {
			c.logger.Debug("object stream write failed", "request", id, "group", g.ID(), "error", err)
			g.CloseWithError(err)
			str.CancelWrite(transport.CodeInternal)
			return true
		}
		b = b[:0]
	}
}
