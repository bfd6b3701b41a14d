package control

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/QYUbit/moqsession/pkg/mlog"
	"github.com/QYUbit/moqsession/pkg/wire"
)

// Channel carries control messages over one bidirectional stream. Writes
// and reads are serialized independently: a writer never waits on a reader,
// but two writers (or two readers) never interleave their messages.
type Channel struct {
	w     io.Writer
	r     *wire.Reader
	codec Codec

	writeMu sync.Mutex
	readMu  sync.Mutex

	requestID atomic.Uint64
	logger    mlog.Logger
}

// NewChannel takes over a stream whose handshake is complete. r must be the
// reader the handshake was decoded from.
func NewChannel(w io.Writer, r *wire.Reader, codec Codec, logger mlog.Logger) *Channel {
	return &Channel{
		w:      w,
		r:      r,
		codec:  codec,
		logger: mlog.OrNop(logger),
	}
}

func (c *Channel) Codec() Codec {
	return c.codec
}

// Write encodes m and writes it as one unit.
func (c *Channel) Write(m Message) error {
	b, err := Encode(nil, m, c.codec)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.logger.Debug("control write", "type", m.Type(), "size", len(b))
	_, err = c.w.Write(b)
	return err
}

// WriteRequest allocates the next request id and writes the message build
// returns for it under the write lock, so ids reach the peer in increasing
// order. A build error aborts the write; the id stays consumed.
func (c *Channel) WriteRequest(build func(id uint64) (Message, error)) (uint64, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	id := c.NextRequestID()
	m, err := build(id)
	if err != nil {
		return id, err
	}
	b, err := Encode(nil, m, c.codec)
	if err != nil {
		return id, err
	}

	c.logger.Debug("control write", "type", m.Type(), "request", id, "size", len(b))
	_, err = c.w.Write(b)
	return id, err
}

// Read blocks until the next message is decoded. Any error leaves the
// channel unusable.
func (c *Channel) Read() (Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	m, err := Decode(c.r, c.codec)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("control read", "type", m.Type())
	return m, nil
}

// NextRequestID returns 0, 2, 4, ... The other parity belongs to the peer.
func (c *Channel) NextRequestID() uint64 {
	return c.requestID.Add(2) - 2
}
