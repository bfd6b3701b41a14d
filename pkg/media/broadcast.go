// Package media models broadcasts, tracks, groups and frames as closable
// in-memory queues shared between a producer and a consumer.
package media

import "context"

// TrackRequest is emitted by a Broadcast when a consumer asks for a track.
type TrackRequest struct {
	Track    *Track
	Priority uint8
}

// Broadcast is a collection of tracks under one namespace path. Consumers
// call Subscribe; the producer serves Requested.
type Broadcast struct {
	requests *queue[TrackRequest]
}

func NewBroadcast() *Broadcast {
	return &Broadcast{requests: newQueue[TrackRequest]()}
}

// Subscribe asks the producer for the named track. The returned track is
// closed with ErrClosed if the broadcast is already closed.
func (b *Broadcast) Subscribe(name string, priority uint8) *Track {
	t := NewTrack(name, priority)
	if err := b.requests.push(TrackRequest{Track: t, Priority: priority}); err != nil {
		t.CloseWithError(ErrClosed)
	}
	return t
}

// Requested blocks until a consumer subscribes to a track. It returns io.EOF
// once the broadcast is closed.
func (b *Broadcast) Requested(ctx context.Context) (TrackRequest, error) {
	return b.requests.pop(ctx)
}

func (b *Broadcast) Close() {
	b.requests.close(nil)
}

func (b *Broadcast) CloseWithError(err error) {
	if err == nil {
		err = ErrCancelled
	}
	b.requests.close(err)
}

func (b *Broadcast) Done() <-chan struct{} {
	return b.requests.done
}
