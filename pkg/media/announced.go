package media

import (
	"context"

	"github.com/QYUbit/moqsession/pkg/wire"
)

// Announcement reports a namespace path becoming active or inactive.
type Announcement struct {
	Path   string
	Active bool
}

// Announced is a live sequence of announcements under a prefix.
type Announced struct {
	prefix string
	events *queue[Announcement]
}

func NewAnnounced(prefix string) *Announced {
	return &Announced{prefix: prefix, events: newQueue[Announcement]()}
}

func (a *Announced) Prefix() string {
	return a.prefix
}

// Append adds an event if its path lies under the prefix. It reports whether
// the event was accepted.
func (a *Announced) Append(e Announcement) bool {
	if !wire.HasPrefix(e.Path, a.prefix) {
		return false
	}
	return a.events.push(e) == nil
}

// Next returns the next announcement, or io.EOF once closed.
func (a *Announced) Next(ctx context.Context) (Announcement, error) {
	return a.events.pop(ctx)
}

func (a *Announced) Close() {
	a.events.close(nil)
}

func (a *Announced) CloseWithError(err error) {
	if err == nil {
		err = ErrCancelled
	}
	a.events.close(err)
}

func (a *Announced) Done() <-chan struct{} {
	return a.events.done
}
