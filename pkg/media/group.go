package media

import "context"

// Group is an ordered run of frames within a track.
type Group struct {
	id     uint64
	frames *queue[[]byte]
}

func NewGroup(id uint64) *Group {
	return &Group{id: id, frames: newQueue[[]byte]()}
}

func (g *Group) ID() uint64 {
	return g.id
}

func (g *Group) WriteFrame(payload []byte) error {
	return g.frames.push(payload)
}

// ReadFrame returns the next frame, or io.EOF once the group was closed
// normally and drained.
func (g *Group) ReadFrame(ctx context.Context) ([]byte, error) {
	return g.frames.pop(ctx)
}

func (g *Group) Close() {
	g.frames.close(nil)
}

func (g *Group) CloseWithError(err error) {
	if err == nil {
		err = ErrCancelled
	}
	g.frames.close(err)
}

// Done is closed once the group is closed by either side.
func (g *Group) Done() <-chan struct{} {
	return g.frames.done
}

// Err returns the error the group was closed with, if any.
func (g *Group) Err() error {
	return g.frames.failure()
}
