package media

import (
	"context"
	"sync"
)

// Track is one named unit of media within a broadcast. The producing side
// appends groups, the consuming side reads them in arrival order.
type Track struct {
	Name     string
	Priority uint8

	groups *queue[*Group]

	mu       sync.Mutex
	sequence uint64
}

func NewTrack(name string, priority uint8) *Track {
	return &Track{
		Name:     name,
		Priority: priority,
		groups:   newQueue[*Group](),
	}
}

func (t *Track) WriteGroup(g *Group) error {
	t.mu.Lock()
	if g.id >= t.sequence {
		t.sequence = g.id + 1
	}
	t.mu.Unlock()

	return t.groups.push(g)
}

// AppendGroup creates and writes a group with the next sequence number.
func (t *Track) AppendGroup() (*Group, error) {
	t.mu.Lock()
	g := NewGroup(t.sequence)
	t.mu.Unlock()

	if err := t.WriteGroup(g); err != nil {
		return nil, err
	}
	return g, nil
}

// NextGroup returns the next group, or io.EOF once the track was closed
// normally and drained.
func (t *Track) NextGroup(ctx context.Context) (*Group, error) {
	return t.groups.pop(ctx)
}

func (t *Track) Close() {
	t.groups.close(nil)
}

func (t *Track) CloseWithError(err error) {
	if err == nil {
		err = ErrCancelled
	}
	t.groups.close(err)
}

func (t *Track) Done() <-chan struct{} {
	return t.groups.done
}

func (t *Track) Err() error {
	return t.groups.failure()
}
