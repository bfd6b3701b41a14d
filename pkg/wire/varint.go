// Package wire implements the primitive encodings shared by every message of
// the session protocol: QUIC variable-length integers, length-prefixed byte
// strings, namespace tuples, message body framing and setup parameters.
package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/quic-go/quic-go/quicvarint"
)

// MaxVarint is the largest value a QUIC varint can carry (2^62-1).
const MaxVarint = quicvarint.Max

const (
	// DefaultMaxAllocation caps any single length-prefixed read.
	DefaultMaxAllocation = 16 * 1024 * 1024

	// MaxTupleLen is the maximum number of namespace elements.
	MaxTupleLen = 32
)

type source interface {
	io.Reader
	io.ByteReader
}

// Reader decodes primitives from a stream or from an already framed body.
// It is not safe for concurrent use; callers serialize access.
type Reader struct {
	src source
	max uint64
}

// NewReader wraps r. A *bufio.Reader is used as is so that a stream handed
// from one owner to the next never loses buffered bytes.
func NewReader(r io.Reader) *Reader {
	switch s := r.(type) {
	case *bufio.Reader:
		return &Reader{src: s, max: DefaultMaxAllocation}
	case *bytes.Reader:
		return &Reader{src: s, max: DefaultMaxAllocation}
	}
	return &Reader{src: bufio.NewReader(r), max: DefaultMaxAllocation}
}

// NewBytesReader returns a Reader over a fully buffered body.
func NewBytesReader(b []byte) *Reader {
	return &Reader{src: bytes.NewReader(b), max: DefaultMaxAllocation}
}

// Remaining reports the unread bytes of a body reader, or -1 for streams.
func (r *Reader) Remaining() int {
	if br, ok := r.src.(*bytes.Reader); ok {
		return br.Len()
	}
	return -1
}

// Done reports whether the underlying source is exhausted without consuming
// anything.
func (r *Reader) Done() (bool, error) {
	switch s := r.src.(type) {
	case *bytes.Reader:
		return s.Len() == 0, nil
	case *bufio.Reader:
		_, err := s.Peek(1)
		if err == io.EOF {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return false, nil
	}
	return false, nil
}

func (r *Reader) ReadVarint() (uint64, error) {
	return quicvarint.Read(r.src)
}

func (r *Reader) ReadUint8() (uint8, error) {
	return r.src.ReadByte()
}

func (r *Reader) ReadUint16() (uint16, error) {
	var buf [2]byte
	if _, err := r.readFull(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// ReadFull reads exactly n bytes.
func (r *Reader) ReadFull(n uint64) ([]byte, error) {
	if n > r.max {
		return nil, fmt.Errorf("%w: %d bytes", ErrValueTooLarge, n)
	}
	if rem := r.Remaining(); rem >= 0 && uint64(rem) < n {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := r.readFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Discard skips n bytes without retaining them.
func (r *Reader) Discard(n uint64) error {
	copied, err := io.CopyN(io.Discard, r.src, int64(n))
	if err == io.EOF && uint64(copied) < n {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ReadBytes reads a varint length followed by that many bytes.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	return r.ReadFull(n)
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	return string(b), err
}

// ReadTuple reads a namespace tuple and joins it into a path.
func (r *Reader) ReadTuple() (string, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return "", err
	}
	if n > MaxTupleLen {
		return "", fmt.Errorf("%w: %d elements", ErrTupleTooLong, n)
	}
	parts := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		part, err := r.ReadString()
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "/"), nil
}

func (r *Reader) readFull(buf []byte) (int, error) {
	n, err := io.ReadFull(r.src, buf)
	if err == io.EOF && len(buf) > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// AppendVarint appends v as a QUIC varint. It panics if v exceeds MaxVarint,
// callers validate values that originate outside this process.
func AppendVarint(b []byte, v uint64) []byte {
	return quicvarint.Append(b, v)
}

func VarintLen(v uint64) int {
	return quicvarint.Len(v)
}

func AppendBytes(b []byte, p []byte) []byte {
	b = AppendVarint(b, uint64(len(p)))
	return append(b, p...)
}

func AppendString(b []byte, s string) []byte {
	b = AppendVarint(b, uint64(len(s)))
	return append(b, s...)
}

// AppendTuple splits path on "/" and appends it as a namespace tuple. The
// empty path is the empty tuple.
func AppendTuple(b []byte, path string) ([]byte, error) {
	parts := SplitPath(path)
	if len(parts) > MaxTupleLen {
		return nil, fmt.Errorf("%w: %d elements", ErrTupleTooLong, len(parts))
	}
	b = AppendVarint(b, uint64(len(parts)))
	for _, part := range parts {
		b = AppendString(b, part)
	}
	return b, nil
}

// SplitPath returns the namespace elements of path.
func SplitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// HasPrefix reports whether path lies under prefix, element-wise.
func HasPrefix(path, prefix string) bool {
	p, pre := SplitPath(path), SplitPath(prefix)
	if len(pre) > len(p) {
		return false
	}
	for i := range pre {
		if p[i] != pre[i] {
			return false
		}
	}
	return true
}
