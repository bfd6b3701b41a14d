package media

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestGroupDrainsBeforeEOF delivers frames written before close.
func TestGroupDrainsBeforeEOF(t *testing.T) {
	ctx := context.Background()
	g := NewGroup(3)

	require.NoError(t, g.WriteFrame([]byte("a")))
	require.NoError(t, g.WriteFrame([]byte("b")))
	g.Close()

	f, err := g.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), f)

	f, err = g.ReadFrame(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("b"), f)

	_, err = g.ReadFrame(ctx)
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, g.Err())

	require.ErrorIs(t, g.WriteFrame([]byte("c")), io.EOF)
}

func TestGroupCloseWithError(t *testing.T) {
	boom := errors.New("boom")
	g := NewGroup(0)
	g.CloseWithError(boom)
	g.Close()

	select {
	case <-g.Done():
	default:
		t.Fatal("group not done")
	}

	_, err := g.ReadFrame(context.Background())
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, g.Err(), boom)
}

// TestReadFrameWakesOnWrite blocks a reader until a frame arrives.
// TestTrackCloseWithErrorDropsGroups cancels a track holding unread groups.
// None of them is handed out afterwards.
func TestTrackCloseWithErrorDropsGroups(t *testing.T) {
	track := NewTrack("video", 0)
	_, err := track.AppendGroup()
	require.NoError(t, err)
	_, err = track.AppendGroup()
	require.NoError(t, err)

	track.CloseWithError(ErrCancelled)

	_, err = track.NextGroup(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
}

func TestTrackCloseDeliversGroups(t *testing.T) {
	track := NewTrack("video", 0)
	_, err := track.AppendGroup()
	require.NoError(t, err)
	track.Close()

	g, err := track.NextGroup(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0), g.ID())

	_, err = track.NextGroup(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameWakesOnWrite(t *testing.T) {
	g := NewGroup(0)

	got := make(chan []byte, 1)
	go func() {
		f, err := g.ReadFrame(context.Background())
		if err == nil {
			got <- f
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, g.WriteFrame([]byte("late")))

	select {
	case f := <-got:
		require.Equal(t, []byte("late"), f)
	case <-time.After(time.Second):
		t.Fatal("reader not woken")
	}
}

func TestReadFrameContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGroup(0).ReadFrame(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestTrackAppendGroupSequence(t *testing.T) {
	tr := NewTrack("video", 1)

	require.NoError(t, tr.WriteGroup(NewGroup(10)))
	g, err := tr.AppendGroup()
	require.NoError(t, err)
	require.Equal(t, uint64(11), g.ID())

	first, err := tr.NextGroup(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(10), first.ID())

	tr.Close()
	_, err = tr.AppendGroup()
	require.ErrorIs(t, err, io.EOF)
}

func TestBroadcastSubscribe(t *testing.T) {
	ctx := context.Background()
	b := NewBroadcast()

	tr := b.Subscribe("audio", 7)
	req, err := b.Requested(ctx)
	require.NoError(t, err)
	require.Same(t, tr, req.Track)
	require.Equal(t, uint8(7), req.Priority)

	b.Close()
	_, err = b.Requested(ctx)
	require.ErrorIs(t, err, io.EOF)

	late := b.Subscribe("video", 0)
	require.ErrorIs(t, late.Err(), ErrClosed)
}

func TestAnnouncedFiltersPrefix(t *testing.T) {
	a := NewAnnounced("live")

	require.True(t, a.Append(Announcement{Path: "live/room1", Active: true}))
	require.False(t, a.Append(Announcement{Path: "lively/room2", Active: true}))
	require.False(t, a.Append(Announcement{Path: "vod/room1", Active: true}))

	e, err := a.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, Announcement{Path: "live/room1", Active: true}, e)

	a.Close()
	require.False(t, a.Append(Announcement{Path: "live/room3", Active: true}))
}
